package templates

import "fmt"

// InfraFlags lists the stateful dependencies requested for an app.
type InfraFlags struct {
	Postgres      bool
	Redis         bool
	Elasticsearch bool
}

const (
	postgresPort      = 5432
	redisPort         = 6379
	elasticsearchPort = 9200

	postgresUser     = "user"
	postgresPassword = "password"
)

// ServiceHost is the in-cluster DNS name of a dependency, e.g. shop-postgres.
func ServiceHost(appName, dependency string) string {
	return appName + "-" + dependency
}

// InfraEnv returns the variables an app needs to reach its dependencies.
func InfraEnv(appName string, flags InfraFlags) map[string]string {
	env := make(map[string]string)
	if flags.Postgres {
		host := ServiceHost(appName, "postgres")
		db := DatabaseName(appName)
		env["DATABASE_URL"] = fmt.Sprintf("postgresql://%s:%s@%s:%d/%s", postgresUser, postgresPassword, host, postgresPort, db)
		env["DB_HOST"] = host
		env["DB_PORT"] = fmt.Sprint(postgresPort)
		env["DB_USER"] = postgresUser
		env["DB_PASSWORD"] = postgresPassword
		env["DB_NAME"] = db
	}
	if flags.Redis {
		host := ServiceHost(appName, "redis")
		env["REDIS_HOST"] = host
		env["REDIS_PORT"] = fmt.Sprint(redisPort)
		env["REDIS_URL"] = fmt.Sprintf("redis://%s:%d", host, redisPort)
	}
	if flags.Elasticsearch {
		env["ELASTICSEARCH_URL"] = fmt.Sprintf("http://%s:%d", ServiceHost(appName, "elasticsearch"), elasticsearchPort)
	}
	return env
}

// MergeEnv overlays user variables on infra-derived ones; user keys win.
func MergeEnv(infra, user map[string]string) map[string]string {
	merged := make(map[string]string, len(infra)+len(user))
	for k, v := range infra {
		merged[k] = v
	}
	for k, v := range user {
		merged[k] = v
	}
	return merged
}
