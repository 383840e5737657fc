package config

const (
	defaultDataDir             = "~/.local/share/autocheck"
	defaultProfileName         = "profile.json"
	defaultHistoryName         = "history.db"
	defaultCheckInPath         = "/student/course/{class_id}/punchs"
	defaultLoginPath           = "/student/login"
	defaultUserAgent           = "Mozilla/5.0 (Linux; Android 12) AppleWebKit/537.36 (KHTML, like Gecko) Mobile Safari/537.36 MicroMessenger/8.0"
	defaultTimeoutSeconds      = 10
	defaultRetryAttempts       = 2
	defaultRetryBackoffMS      = 500
	defaultConcurrency         = 2
	defaultMessageSelector     = ".msg, #msg, .weui-msg__title, title"
	defaultWeComAPIBaseURL     = "https://qyapi.weixin.qq.com"
	defaultWeComRequestTimeout = 10
	defaultTimezone            = "Local"
	defaultCountdownIntervalMS = 1000
	defaultKeepRuns            = 500
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

var (
	defaultSuccessMarkers = []string{"签到成功", "check-in successful", "checked in successfully"}
	defaultAlreadyMarkers = []string{"已签到", "已经签到", "already checked in"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		CheckIn: CheckIn{
			CheckInPath:     defaultCheckInPath,
			LoginPath:       defaultLoginPath,
			UserAgent:       defaultUserAgent,
			TimeoutSeconds:  defaultTimeoutSeconds,
			RetryAttempts:   defaultRetryAttempts,
			RetryBackoffMS:  defaultRetryBackoffMS,
			Concurrency:     defaultConcurrency,
			MessageSelector: defaultMessageSelector,
			SuccessMarkers:  append([]string(nil), defaultSuccessMarkers...),
			AlreadyMarkers:  append([]string(nil), defaultAlreadyMarkers...),
		},
		WeCom: WeCom{
			APIBaseURL:     defaultWeComAPIBaseURL,
			RequestTimeout: defaultWeComRequestTimeout,
		},
		Schedule: Schedule{
			Timezone:            defaultTimezone,
			CountdownIntervalMS: defaultCountdownIntervalMS,
			WatchProfile:        true,
		},
		History: History{
			KeepRuns: defaultKeepRuns,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
