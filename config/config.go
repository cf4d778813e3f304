package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// Config 结构体用于存储应用程序的配置信息
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	JWTSecret  string
	LogLevel   string
	ServerAddr string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	StoreName    string
	FrontendURL  string
	BackendURL   string

	// 支付网关
	RazorpayKeyID     string
	RazorpayKeySecret string
	Currency          string
	PaymentWindow     time.Duration

	// 运费，订单商品金额达到 FreeDeliveryAbove 时免运费，0 表示不设门槛
	DeliveryFee       float64
	FreeDeliveryAbove float64

	// 积分
	LoyaltyRate float64

	// Redis 缓存与限流
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RateLimitPerMin int

	// Kafka 通知总线，Brokers 为空时通知在进程内直接投递
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	WhatsAppEnabled bool

	// 后台任务
	SweepInterval    time.Duration
	RelayInterval    time.Duration
	BackfillInterval time.Duration

	// 发票存储：local / s3 / gcs
	StorageDriver      string
	S3Region           string
	S3Bucket           string
	GCSProjectID       string
	GCSBucketName      string
	GCSCredentialsFile string
	LocalStoragePath   string

	Debug bool // 是否开启调试模式
}

// AppConfig 是全局配置变量
var AppConfig Config

// Init 函数用于初始化配置
func Init() {
	// 加载 .env 文件
	err := godotenv.Load()
	if err != nil {
		log.Printf("警告：无法加载 .env 文件: %v", err)
	}

	AppConfig = Load()

	validateConfig()

	if AppConfig.Debug {
		gin.SetMode(gin.DebugMode)
		log.Println("应用程序运行在调试模式")
	} else {
		gin.SetMode(gin.ReleaseMode)
		log.Println("应用程序运行在生产模式")
	}

	log.Printf("配置加载完成。数据库：%s:%s", AppConfig.DBHost, AppConfig.DBPort)
	log.Printf("SMTP配置：主机=%s，端口=%d，用户名=%s", AppConfig.SMTPHost, AppConfig.SMTPPort, AppConfig.SMTPUsername)
}

// Load 从环境变量读取配置，不做校验
func Load() Config {
	return Config{
		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", ""),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 465),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		StoreName:    getEnv("STORE_NAME", "Fashion Store"),
		FrontendURL:  getEnv("FRONTEND_URL", "http://localhost:3000"),
		BackendURL:   getEnv("BACKEND_URL", "http://localhost:8080"),

		RazorpayKeyID:     getEnv("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret: getEnv("RAZORPAY_KEY_SECRET", ""),
		Currency:          getEnv("PAYMENT_CURRENCY", "INR"),
		PaymentWindow:     getEnvAsDuration("PAYMENT_WINDOW", 20*time.Minute),

		DeliveryFee:       getEnvAsFloat("DELIVERY_FEE", 0),
		FreeDeliveryAbove: getEnvAsFloat("FREE_DELIVERY_ABOVE", 0),

		LoyaltyRate: getEnvAsFloat("LOYALTY_RATE", 0.02),

		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		RateLimitPerMin: getEnvAsInt("RATE_LIMIT_PER_MIN", 30),

		KafkaBrokers: splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "store.notifications"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "store-notifier"),

		WhatsAppEnabled: getEnvAsBool("WHATSAPP_ENABLED", false),

		SweepInterval:    getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		RelayInterval:    getEnvAsDuration("OUTBOX_RELAY_INTERVAL", 2*time.Second),
		BackfillInterval: getEnvAsDuration("LOYALTY_BACKFILL_INTERVAL", 10*time.Minute),

		StorageDriver:      getEnv("STORAGE_DRIVER", "local"),
		S3Region:           getEnv("S3_REGION", "ap-south-1"),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		GCSProjectID:       getEnv("GCS_PROJECT_ID", ""),
		GCSBucketName:      getEnv("GCS_BUCKET_NAME", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		LocalStoragePath:   getEnv("LOCAL_STORAGE_PATH", "./uploads"),

		Debug: getEnvAsBool("DEBUG", false),
	}
}

// DSN 返回 MySQL 连接串
func (c Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName +
		"?charset=utf8mb4&parseTime=True&loc=Local"
}

// KafkaEnabled 是否配置了 Kafka
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := getEnv(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valStr := getEnv(key, "")
	if val, err := time.ParseDuration(valStr); err == nil && val > 0 {
		return val
	}
	return defaultVal
}

// splitCSV 解析逗号分隔的列表，忽略空项
func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateConfig() {
	if AppConfig.DBHost == "" || AppConfig.DBUser == "" || AppConfig.DBName == "" {
		log.Fatal("错误：数据库配置不完整")
	}
	if AppConfig.JWTSecret == "" {
		log.Fatal("错误：JWT密钥未设置")
	}
	if AppConfig.RazorpayKeyID == "" || AppConfig.RazorpayKeySecret == "" {
		log.Fatal("错误：支付网关密钥未设置")
	}
	if AppConfig.SMTPUsername == "" || AppConfig.SMTPPassword == "" {
		log.Println("警告：SMTP配置不完整，邮件通知将失败并记录日志")
	}
}
