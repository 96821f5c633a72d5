package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

const serviceName = "shoplane-auth"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Request logs, token-decode
// warnings and audit events all write through it, so log shippers see one
// JSON stream per process.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one JSON line. Every entry is stamped with the service
// name so auth-core lines stay filterable when co-deployed behind a shared
// collector.
func LogRequest(entry map[string]any) {
	if _, ok := entry["service"]; !ok {
		entry["service"] = serviceName
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"service":"` + serviceName + `","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
