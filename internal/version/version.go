package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Service — имя сервиса в логах и health-ответах.
const Service = "customer-service"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// Version возвращает номер сборки.
func Version() string { return version }

func String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", Service, version, commit, date)
}

// Fields возвращает поля для стартового лога.
func Fields() log.Fields {
	return log.Fields{
		"service": Service,
		"version": version,
		"commit":  commit,
		"date":    date,
	}
}
