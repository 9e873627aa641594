package telemetry

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

// Initialize returns a New Relic application, or nil when no license key is
// configured. Every newrelic method used here tolerates a nil application.
func Initialize(appName, licenseKey string, log *logrus.Entry) (*newrelic.Application, error) {
	if licenseKey == "" {
		log.Info("New Relic monitoring is disabled")
		return nil, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(appName),
		newrelic.ConfigLicense(licenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigLogger(nrLogger{log: log}),
	)
	if err != nil {
		log.WithError(err).Error("Failed to initialize New Relic")
		return nil, err
	}

	log.WithField("app_name", appName).Info("New Relic initialized successfully")
	return app, nil
}

// GinMiddleware records every request as a web transaction.
func GinMiddleware(app *newrelic.Application) gin.HandlerFunc {
	return func(c *gin.Context) {
		if app == nil {
			c.Next()
			return
		}
		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		txn := app.StartTransaction(c.Request.Method + " " + name)
		defer txn.End()

		txn.SetWebRequestHTTP(c.Request)
		c.Request = newrelic.RequestWithTransactionContext(c.Request, txn)
		c.Next()
		txn.SetWebResponse(nil).WriteHeader(c.Writer.Status())
	}
}

// nrLogger implements the newrelic.Logger interface using logrus
type nrLogger struct {
	log *logrus.Entry
}

func (l nrLogger) Error(msg string, context map[string]interface{}) {
	l.log.WithFields(logrus.Fields(context)).Error(msg)
}

func (l nrLogger) Warn(msg string, context map[string]interface{}) {
	l.log.WithFields(logrus.Fields(context)).Warn(msg)
}

func (l nrLogger) Info(msg string, context map[string]interface{}) {
	l.log.WithFields(logrus.Fields(context)).Info(msg)
}

func (l nrLogger) Debug(msg string, context map[string]interface{}) {
	l.log.WithFields(logrus.Fields(context)).Debug(msg)
}

func (l nrLogger) DebugEnabled() bool {
	return l.log.Logger.IsLevelEnabled(logrus.DebugLevel)
}
