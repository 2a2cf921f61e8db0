// Package echoutil holds middlewares and settings of echo servers.
package echoutil

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// LogHandlerFunc logs each request and its response.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		meth := c.Request().Method
		path := c.Request().URL
		BEGIN := time.Now()
		c.Logger().Infof(
			"< request @[%s] %s %s", BEGIN, meth, path,
		)

		var err error

		defer func() {
			END := time.Now()
			c.Logger().Infof(
				"> response @[%s] status = %d (for request @[%s] %s %s) in %v / error = %+v",
				END, c.Response().Status, BEGIN, meth, path, END.Sub(BEGIN), err,
			)
		}()

		err = next(c)
		return err
	}
}

// ParseLevel reads log level. debug|info|warn|error|off
func ParseLevel(loglevel string) (log.Lvl, bool) {
	switch strings.ToLower(loglevel) {
	case "debug":
		return log.DEBUG, true
	case "info":
		return log.INFO, true
	case "warn", "":
		return log.WARN, true
	case "error":
		return log.ERROR, true
	case "off":
		return log.OFF, true
	}
	return log.WARN, false
}

// SetLevel sets log level of e. Unknown levels fall back to warn.
func SetLevel(e *echo.Echo, loglevel string) {
	lvl, ok := ParseLevel(loglevel)
	e.Logger.SetLevel(lvl)
	if !ok {
		e.Logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
	}
}
