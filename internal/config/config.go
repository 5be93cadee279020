// Package config provides configuration management for the smartcut agent.
// Values come from an optional TOML file; environment variables override it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort         = 8787
	DefaultLogLevel     = "info"
	DefaultDataDir      = ".smartcut"
	DefaultFFmpeg       = "ffmpeg"
	DefaultFFprobe      = "ffprobe"
	DefaultExportFPS    = 30
	DefaultQueueDepth   = 8
	DefaultRetainedJobs = 16
	DefaultSpan         = 5.0
	DefaultVideoBitrate = "2500k"

	// Environment variable names
	EnvConfigFile  = "SMARTCUT_CONFIG"
	EnvPort        = "SMARTCUT_PORT"
	EnvLogLevel    = "SMARTCUT_LOG_LEVEL"
	EnvDataDir     = "SMARTCUT_DATA_DIR"
	EnvFFmpeg      = "SMARTCUT_FFMPEG"
	EnvFFprobe     = "SMARTCUT_FFPROBE"
	EnvExportFPS   = "SMARTCUT_EXPORT_FPS"
	EnvQueueDepth  = "SMARTCUT_EXPORT_QUEUE_DEPTH"
	EnvRetained    = "SMARTCUT_EXPORT_RETAINED_JOBS"
	EnvDefaultSpan = "SMARTCUT_DEFAULT_SPAN"
	EnvHeadless    = "SMARTCUT_HEADLESS"
	EnvAuthToken   = "SMARTCUT_AUTH_TOKEN"

	// Analysis environment variable names
	EnvAnalysisPython  = "SMARTCUT_ANALYSIS_PYTHON"
	EnvAnalysisModule  = "SMARTCUT_ANALYSIS_MODULE"
	EnvAnalysisTimeout = "SMARTCUT_ANALYSIS_TIMEOUT"
	EnvAnalysisTTL     = "SMARTCUT_ANALYSIS_DOCTOR_TTL"

	// Database and single-instance lock filenames
	DBFilename   = "smartcut.db"
	LockFilename = "smartcut.lock"

	// Analysis defaults
	DefaultAnalysisModule  = "smartcut_analysis"
	DefaultAnalysisTimeout = 1200 // 20 minutes
	DefaultAnalysisTTL     = 300
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LockPath() string
	ExportDir() string
	AuthToken() string
	FFmpegPath() string
	FFprobePath() string
	ExportFPS() float64
	ExportQueueDepth() int
	// ExportRetainedJobs is how many finished exports stay downloadable.
	ExportRetainedJobs() int
	VideoBitrate() string
	DefaultSpan() float64
	AnalysisPython() string
	AnalysisModule() string
	AnalysisTimeout() time.Duration
	AnalysisDoctorTTL() time.Duration
	Headless() bool
	// FilePath is the TOML file that was read, or "" when none existed.
	FilePath() string
}

// File is the on-disk TOML layout.
type File struct {
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
	DataDir  string `toml:"data_dir"`
	Headless bool   `toml:"headless"`

	Media struct {
		FFmpeg  string `toml:"ffmpeg"`
		FFprobe string `toml:"ffprobe"`
	} `toml:"media"`

	Export struct {
		FPS          float64 `toml:"fps"`
		QueueDepth   int     `toml:"queue_depth"`
		RetainedJobs int     `toml:"retained_jobs"`
		VideoBitrate string  `toml:"video_bitrate"`
	} `toml:"export"`

	Editor struct {
		DefaultSpan float64 `toml:"default_span"`
	} `toml:"editor"`

	Analysis struct {
		Python         string `toml:"python"`
		Module         string `toml:"module"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
		DoctorTTL      int    `toml:"doctor_ttl_seconds"`
	} `toml:"analysis"`
}

// EnvConfig reads configuration from a TOML file and environment variables
type EnvConfig struct {
	port         int
	logLevel     string
	dataDir      string
	authToken    string
	ffmpeg       string
	ffprobe      string
	exportFPS    float64
	queueDepth   int
	retainedJobs int
	videoBitrate string
	defaultSpan  float64
	headless     bool
	filePath     string

	analysisPython  string
	analysisModule  string
	analysisTimeout int
	analysisTTL     int
}

// New creates a new EnvConfig with defaults, file values and environment
// variable overrides, in that order.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:            DefaultPort,
		logLevel:        DefaultLogLevel,
		dataDir:         defaultDataDir(),
		ffmpeg:          DefaultFFmpeg,
		ffprobe:         DefaultFFprobe,
		exportFPS:       DefaultExportFPS,
		queueDepth:      DefaultQueueDepth,
		retainedJobs:    DefaultRetainedJobs,
		videoBitrate:    DefaultVideoBitrate,
		defaultSpan:     DefaultSpan,
		analysisModule:  DefaultAnalysisModule,
		analysisTimeout: DefaultAnalysisTimeout,
		analysisTTL:     DefaultAnalysisTTL,
	}

	path, exists, err := resolveConfigPath(os.Getenv(EnvConfigFile))
	if err != nil {
		return nil, err
	}
	if exists {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		cfg.filePath = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var file File
	if err := toml.NewDecoder(f).Decode(&file); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if file.Port != 0 {
		c.port = file.Port
	}
	if file.LogLevel != "" {
		c.logLevel = file.LogLevel
	}
	if file.DataDir != "" {
		dir, err := expandPath(file.DataDir)
		if err != nil {
			return err
		}
		c.dataDir = dir
	}
	c.headless = file.Headless
	if file.Media.FFmpeg != "" {
		c.ffmpeg = file.Media.FFmpeg
	}
	if file.Media.FFprobe != "" {
		c.ffprobe = file.Media.FFprobe
	}
	if file.Export.FPS != 0 {
		c.exportFPS = file.Export.FPS
	}
	if file.Export.QueueDepth != 0 {
		c.queueDepth = file.Export.QueueDepth
	}
	if file.Export.RetainedJobs != 0 {
		c.retainedJobs = file.Export.RetainedJobs
	}
	if file.Export.VideoBitrate != "" {
		c.videoBitrate = file.Export.VideoBitrate
	}
	if file.Editor.DefaultSpan != 0 {
		c.defaultSpan = file.Editor.DefaultSpan
	}
	if file.Analysis.Python != "" {
		c.analysisPython = file.Analysis.Python
	}
	if file.Analysis.Module != "" {
		c.analysisModule = file.Analysis.Module
	}
	if file.Analysis.TimeoutSeconds != 0 {
		c.analysisTimeout = file.Analysis.TimeoutSeconds
	}
	if file.Analysis.DoctorTTL != 0 {
		c.analysisTTL = file.Analysis.DoctorTTL
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		c.ffmpeg = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" {
		c.ffprobe = v
	}
	c.authToken = os.Getenv(EnvAuthToken)

	if v := os.Getenv(EnvExportFPS); v != "" {
		fps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvExportFPS, err)
		}
		c.exportFPS = fps
	}
	if v := os.Getenv(EnvQueueDepth); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvQueueDepth, err)
		}
		c.queueDepth = n
	}
	if v := os.Getenv(EnvRetained); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRetained, err)
		}
		c.retainedJobs = n
	}
	if v := os.Getenv(EnvDefaultSpan); v != "" {
		span, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDefaultSpan, err)
		}
		c.defaultSpan = span
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = b
	}

	if v := os.Getenv(EnvAnalysisPython); v != "" {
		c.analysisPython = v
	}
	if v := os.Getenv(EnvAnalysisModule); v != "" {
		c.analysisModule = v
	}
	if v := os.Getenv(EnvAnalysisTimeout); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAnalysisTimeout, err)
		}
		c.analysisTimeout = secs
	}
	if v := os.Getenv(EnvAnalysisTTL); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAnalysisTTL, err)
		}
		c.analysisTTL = secs
	}
	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.port)
	}
	if c.exportFPS <= 0 || c.exportFPS > 120 {
		return fmt.Errorf("invalid export fps %v: must be in (0, 120]", c.exportFPS)
	}
	if c.queueDepth < 1 {
		return fmt.Errorf("invalid export queue depth %d: must be positive", c.queueDepth)
	}
	if c.retainedJobs < 1 {
		return fmt.Errorf("invalid retained export jobs %d: must be positive", c.retainedJobs)
	}
	if c.defaultSpan <= 0 {
		return fmt.Errorf("invalid default span %v: must be positive", c.defaultSpan)
	}
	if c.analysisTimeout < 1 {
		return fmt.Errorf("invalid analysis timeout %d: must be positive", c.analysisTimeout)
	}
	if c.analysisTTL < 1 {
		return fmt.Errorf("invalid doctor ttl %d: must be positive", c.analysisTTL)
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// ExportDir is the default destination for written artifacts and EDLs.
func (c *EnvConfig) ExportDir() string {
	return filepath.Join(c.dataDir, "exports")
}

// AuthToken returns a fixed bearer token, or "" to generate one per run.
func (c *EnvConfig) AuthToken() string {
	return c.authToken
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpeg
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobe
}

func (c *EnvConfig) ExportFPS() float64 {
	return c.exportFPS
}

func (c *EnvConfig) ExportQueueDepth() int {
	return c.queueDepth
}

func (c *EnvConfig) ExportRetainedJobs() int {
	return c.retainedJobs
}

func (c *EnvConfig) VideoBitrate() string {
	return c.videoBitrate
}

func (c *EnvConfig) DefaultSpan() float64 {
	return c.defaultSpan
}

func (c *EnvConfig) AnalysisPython() string {
	return c.analysisPython
}

func (c *EnvConfig) AnalysisModule() string {
	return c.analysisModule
}

func (c *EnvConfig) AnalysisTimeout() time.Duration {
	return time.Duration(c.analysisTimeout) * time.Second
}

// AnalysisDoctorTTL is how long a doctor result is reused.
func (c *EnvConfig) AnalysisDoctorTTL() time.Duration {
	return time.Duration(c.analysisTTL) * time.Second
}

// Headless disables the tray icon.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) FilePath() string {
	return c.filePath
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/smartcut/config.toml")
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = p
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
