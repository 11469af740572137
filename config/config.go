package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Output  OutputConfig  `mapstructure:"output"`
	Extract ExtractConfig `mapstructure:"extract"`
	Segment SegmentConfig `mapstructure:"segment"`
	Rembg   RembgConfig   `mapstructure:"rembg"`
	Trace   TraceConfig   `mapstructure:"trace"`
	Mesh    MeshConfig    `mapstructure:"mesh"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	UploadDir    string   `mapstructure:"upload_dir"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// ExtractConfig holds the mask extraction defaults. Threshold is the binary
// luminance cut-off, DeltaEThreshold the Lab colour distance cut-off for
// uniform backgrounds; the remaining fields drive morphological cleanup.
type ExtractConfig struct {
	Threshold       int     `mapstructure:"threshold"`
	DeltaEThreshold float64 `mapstructure:"delta_e_threshold"`
	CloseRadius     int     `mapstructure:"close_radius"`
	OpenRadius      int     `mapstructure:"open_radius"`
	MinObjectPx     int     `mapstructure:"min_object_px"`
	FillHolePx      int     `mapstructure:"fill_hole_px"`
}

// SegmentConfig drives the graph-segmentation fallback for complex scenes.
type SegmentConfig struct {
	Scale   float64 `mapstructure:"scale"`
	Sigma   float64 `mapstructure:"sigma"`
	MinSize int     `mapstructure:"min_size"`
}

// RembgConfig configures the local neural background-removal session.
type RembgConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ModelPath   string `mapstructure:"model_path"`
	LibraryPath string `mapstructure:"library_path"`
	InputName   string `mapstructure:"input_name"`
	OutputName  string `mapstructure:"output_name"`
}

type TraceConfig struct {
	SimplifyEpsilon float64 `mapstructure:"simplify_epsilon"`
	SmoothRadius    float64 `mapstructure:"smooth_radius"`
}

// MeshConfig holds the cutter synthesis defaults and the concurrency guard
// for the CPU-heavy synthesis stage.
type MeshConfig struct {
	TargetWidthMM       float64 `mapstructure:"target_width_mm"`
	WallMM              float64 `mapstructure:"wall_mm"`
	TotalHeightMM       float64 `mapstructure:"total_h_mm"`
	FlangeHeightMM      float64 `mapstructure:"flange_h_mm"`
	FlangeOutMM         float64 `mapstructure:"flange_out_mm"`
	CleanupMM           float64 `mapstructure:"cleanup_mm"`
	TipSmoothMM         float64 `mapstructure:"tip_smooth_mm"`
	BevelHeightMM       float64 `mapstructure:"bevel_h_mm"`
	BevelTopWallMM      float64 `mapstructure:"bevel_top_wall_mm"`
	Samples             int     `mapstructure:"samples"`
	MinComponentAreaMM2 float64 `mapstructure:"min_component_area_mm2"`
	MaxConcurrent       int     `mapstructure:"max_concurrent"`
	QueueTimeout        int     `mapstructure:"queue_timeout"`
}

// Load reads configuration from a YAML file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New loads config.yaml from the working directory, falling back to the
// built-in defaults when the file is absent.
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		return Default()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.upload_dir", "./uploads")
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/jpg"})

	v.SetDefault("output.dir", "./output")

	v.SetDefault("extract.threshold", 200)
	v.SetDefault("extract.delta_e_threshold", 28.0)
	v.SetDefault("extract.close_radius", 5)
	v.SetDefault("extract.open_radius", 2)
	v.SetDefault("extract.min_object_px", 300)
	v.SetDefault("extract.fill_hole_px", 2000)

	v.SetDefault("segment.scale", 100.0)
	v.SetDefault("segment.sigma", 0.8)
	v.SetDefault("segment.min_size", 200)

	v.SetDefault("rembg.enabled", true)
	v.SetDefault("rembg.model_path", "./models/u2net.onnx")
	v.SetDefault("rembg.library_path", "")
	v.SetDefault("rembg.input_name", "input.1")
	v.SetDefault("rembg.output_name", "output")

	v.SetDefault("trace.simplify_epsilon", 0.002)
	v.SetDefault("trace.smooth_radius", 1.0)

	v.SetDefault("mesh.target_width_mm", 95.0)
	v.SetDefault("mesh.wall_mm", 1.0)
	v.SetDefault("mesh.total_h_mm", 25.0)
	v.SetDefault("mesh.flange_h_mm", 7.226)
	v.SetDefault("mesh.flange_out_mm", 5.0)
	v.SetDefault("mesh.cleanup_mm", 0.5)
	v.SetDefault("mesh.tip_smooth_mm", 0.6)
	v.SetDefault("mesh.bevel_h_mm", 3.0)
	v.SetDefault("mesh.bevel_top_wall_mm", 0.5)
	v.SetDefault("mesh.samples", 520)
	v.SetDefault("mesh.min_component_area_mm2", 25.0)
	v.SetDefault("mesh.max_concurrent", 3)
	v.SetDefault("mesh.queue_timeout", 60)
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return &cfg
}
