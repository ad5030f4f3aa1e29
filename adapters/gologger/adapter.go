package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// RootName prefixes every component logger.
const RootName = "connections"

// Resolve applies provider > logger > nop precedence under RootName.
func Resolve(provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(RootName, provider, logger)
}

// Component returns the named child logger, e.g. "connections.webhooks".
func Component(provider glog.LoggerProvider, component string) glog.Logger {
	if provider == nil {
		return glog.Nop()
	}
	name := RootName
	if component = strings.Trim(strings.TrimSpace(component), "."); component != "" {
		name += "." + component
	}
	return glog.Ensure(provider.GetLogger(name))
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// JobLogger resolves the "jobs" component and bridges it to go-job.
func JobLogger(provider glog.LoggerProvider, logger glog.Logger) job.Logger {
	resolvedProvider, resolved := Resolve(provider, logger)
	if resolvedProvider != nil {
		return ToJobLogger(Component(resolvedProvider, "jobs"))
	}
	return ToJobLogger(resolved)
}
