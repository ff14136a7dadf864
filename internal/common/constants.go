package common

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvDataPath         = "DATA_PATH"
	EnvHTTPPort         = "HTTP_PORT"
	EnvMetricsPort      = "METRICS_PORT"
	EnvRequestTimeout   = "REQUEST_TIMEOUT"
	EnvLogLevel         = "LOG_LEVEL"
	EnvDBHost           = "DB_HOST"
	EnvDBPort           = "DB_PORT"
	EnvDBUser           = "DB_USER"
	EnvDBPassword       = "DB_PASSWORD"
	EnvDBName           = "DB_NAME"
	EnvDBSSLMode        = "DB_SSLMODE"
	EnvHomeID           = "HOME_ID"
	EnvLocationID       = "LOCATION_ID"
	EnvHistoryHours     = "HISTORY_HOURS"
	EnvWeatherHours     = "WEATHER_HOURS"
	EnvTrainingLookback = "TRAINING_LOOKBACK"
	EnvTrees            = "MODEL_TREES"
	EnvMaxDepth         = "MODEL_MAX_DEPTH"
	EnvSeed             = "MODEL_SEED"
	EnvHoldoutRatio     = "HOLDOUT_RATIO"
	EnvTrainWorkers     = "TRAIN_WORKERS"
	EnvDefaultHorizon   = "DEFAULT_HORIZON_HOURS"
	EnvMaxHorizon       = "MAX_HORIZON_HOURS"
	EnvBaseRate         = "BASE_RATE"
	EnvWeatherSource    = "WEATHER_SOURCE"
	EnvWeatherURL       = "WEATHER_URL"
	EnvLatitude         = "LATITUDE"
	EnvLongitude        = "LONGITUDE"
)

// Weather sources
const (
	WeatherSourceDB        = "db"
	WeatherSourceOpenMeteo = "openmeteo"
)

// Configuration defaults
const (
	DefaultDataPath         = "data"
	DefaultHTTPPort         = 8000
	DefaultMetricsPort      = 9090
	DefaultDBHost           = "localhost"
	DefaultDBPort           = 5432
	DefaultDBUser           = "energy"
	DefaultDBName           = "energy"
	DefaultDBSSLMode        = "disable"
	DefaultHomeID           = "home_001"
	DefaultLocationID       = "default"
	DefaultHistoryHours     = 168 // one week, enough for lag_168h
	DefaultWeatherHours     = 24
	DefaultTrees            = 100
	DefaultMaxDepth         = 10
	DefaultSeed             = 42
	DefaultHoldoutRatio     = 0.2
	DefaultDefaultHorizon   = 3
	DefaultMaxHorizon       = 168
	DefaultBaseRate         = 0.30 // currency per kWh
	DefaultWeatherSource    = WeatherSourceDB
	DefaultWeatherURL       = "https://api.open-meteo.com"
	DefaultLatitude         = 52.52
	DefaultLongitude        = 13.41
	DefaultLogLevel         = "info"
	DefaultRequestTimeoutS  = 30
	DefaultTrainingLookback = 365 * 24 // hours
)

// Validation constants
const (
	MinPort         = 1024
	MaxPort         = 65535
	MaxTrees        = 1000
	MaxTreeDepth    = 32
	MaxHorizonLimit = 24 * 14
)
