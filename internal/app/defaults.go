package app

// defaults fill keys a deployment commonly leaves out of config.yaml.
var defaults = map[string]any{
	"app.name":                                    "Yield Cycle",
	"app.tz":                                      "UTC",
	"app.node_id":                                 1,
	"app.server.max_goroutine":                    100,
	"app.server.http.address":                     ":8080",
	"app.server.http.read_timeout_seconds":        10,
	"app.server.http.read_header_timeout_seconds": 5,
	"app.server.http.write_timeout_seconds":       15,
	"app.server.http.idle_timeout_seconds":        60,

	"instrument.log_level":          "info",
	"instrument.trace_sample_ratio": 1.0,
	"instrument.log_mask_fields":    "code,password,authorization,token,otp",

	"messaging.driver":                      "nats",
	"messaging.nats.max_reconnects":         10,
	"messaging.nats.timeout_seconds":        5,
	"messaging.nats.reconnect_wait_seconds": 2,
	"messaging.kafka.dial_timeout_seconds":  10,

	"mail.timeout_seconds": 10,

	"jwt.ttl_minutes": 10,

	"modules.otp.enabled":                   true,
	"modules.otp.store":                     "postgres",
	"modules.otp.delivery.channel":          "messaging",
	"modules.otp.code_length":               6,
	"modules.otp.max_attempts":              3,
	"modules.otp.default_ttl_minutes":       5,
	"modules.otp.resend_cooldown_seconds":   60,
	"modules.otp.operation_timeout_seconds": 10,
	"modules.otp.sweeper.enabled":           true,
	"modules.otp.sweeper.interval_seconds":  300,
	"modules.otp.sweeper.retention_minutes": 60,
	"modules.otp.sweeper.batch_size":        500,

	"modules.notification.enabled":              true,
	"modules.notification.consumer_names":       "otp_issued",
	"modules.notification.consumer_concurrency": 10,
	"modules.notification.mail_retries":         3,
}
