package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		DisableReqLogs            bool
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		URL           string // takes precedence over the individual fields
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	MediaConfig struct {
		Backend          string // local | gcs
		UploadDir        string
		PublicPrefix     string
		GCSBucket        string
		GCSPublicBaseURL string
		FFProbePath      string
	}

	SchedulerConfig struct {
		Disabled      bool
		ReconcileSpec string
	}

	// Config holds the application configuration. It is built once at start-up and passed around explicitly.
	Config struct {
		AppName  string
		Env      string
		Build    string
		Debug    bool
		TestMode bool
		WorkDir  string

		SecretKey                 string
		RefreshSecretKey          string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		AdminEmail                mail.Address
		SendgridApiKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		Media     MediaConfig
		Scheduler SchedulerConfig
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

func (sc ServerConfig) Address() string {
	return net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port))
}

// NewConfig reads the configuration from defaults, `config/.env.<env>` and the environment, in that order.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Edu-Platform")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("refreshSecretKey", "x8#kd0-zq!4m(l1v@v1=p3wq+ajc7_2m$oh9ng)w5e^tq(ru0b")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("defaultFromEmail", "Edu-Platform <noreply@localhost>")
	v.SetDefault("adminEmail", "admin@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "eduplatform")
	v.SetDefault("database.user", "eduplatform")
	v.SetDefault("database.password", "eduplatform")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("media.backend", "local")
	v.SetDefault("media.uploadDir", "uploads")
	v.SetDefault("media.publicPrefix", "/uploads")
	v.SetDefault("media.gcsBucket", "")
	v.SetDefault("media.gcsPublicBaseURL", "https://storage.googleapis.com")
	v.SetDefault("media.ffprobePath", "ffprobe")

	v.SetDefault("scheduler.disabled", false)
	v.SetDefault("scheduler.reconcileSpec", "0 3 * * *")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// names used by existing deployments
	_ = v.BindEnv("secretKey", "JWT_SECRET")
	_ = v.BindEnv("refreshSecretKey", "JWT_REFRESH_SECRET")
	_ = v.BindEnv("frontendBaseURL", "FRONTEND_URL")
	_ = v.BindEnv("defaultFromEmail", "MAIL_FROM")
	_ = v.BindEnv("adminEmail", "ADMIN_EMAIL")
	_ = v.BindEnv("sendgridApiKey", "SENDGRID_API_KEY")
	_ = v.BindEnv("rollbarToken", "ROLLBAR_TOKEN")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")

	conf := &Config{
		AppName:  v.GetString("appName"),
		Env:      env,
		Build:    v.GetString("build"),
		Debug:    v.GetBool("debug"),
		TestMode: v.GetBool("testMode"),
		WorkDir:  workDir,

		SecretKey:                 v.GetString("secretKey"),
		RefreshSecretKey:          v.GetString("refreshSecretKey"),
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          parseAddress(v.GetString("defaultFromEmail")),
		AdminEmail:                parseAddress(v.GetString("adminEmail")),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetInt("server.port"),
			DebugHost:                 v.GetString("server.debugHost"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			URL:           v.GetString("database.url"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Media: MediaConfig{
			Backend:          strings.ToLower(v.GetString("media.backend")),
			UploadDir:        v.GetString("media.uploadDir"),
			PublicPrefix:     v.GetString("media.publicPrefix"),
			GCSBucket:        v.GetString("media.gcsBucket"),
			GCSPublicBaseURL: strings.TrimRight(v.GetString("media.gcsPublicBaseURL"), "/"),
			FFProbePath:      v.GetString("media.ffprobePath"),
		},
		Scheduler: SchedulerConfig{
			Disabled:      v.GetBool("scheduler.disabled"),
			ReconcileSpec: v.GetString("scheduler.reconcileSpec"),
		},
	}
	if !filepath.IsAbs(conf.Media.UploadDir) {
		conf.Media.UploadDir = filepath.Join(workDir, conf.Media.UploadDir)
	}
	return conf
}

func parseAddress(s string) mail.Address {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		log.Print(fmt.Errorf("config.parseAddress(%q): %v", s, err))
		return mail.Address{Address: s}
	}
	return *addr
}
