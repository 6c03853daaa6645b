package core

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env    string `yaml:"env" env:"ENV" env-default:"local"`
	Listen struct {
		BindIP string `yaml:"bind_ip" env:"LISTEN_BIND_IP" env-default:"0.0.0.0"`
		Port   string `yaml:"port" env:"LISTEN_PORT" env-default:"3000"`
	} `yaml:"listen"`
	HTTP struct {
		MaxBodyBytes int64 `yaml:"max_body_bytes" env:"HTTP_MAX_BODY_BYTES" env-default:"10485760"`
	} `yaml:"http"`
	Chat struct {
		Persona string `yaml:"persona" env:"CHAT_PERSONA" env-default:"You are a helpful AI assistant."`
	} `yaml:"chat"`
	Ollama struct {
		URL     string        `yaml:"url" env:"OLLAMA_URL" env-default:"http://localhost:11434"`
		Model   string        `yaml:"model" env:"OLLAMA_MODEL" env-default:"llama3.2:latest"`
		Timeout time.Duration `yaml:"timeout" env:"OLLAMA_TIMEOUT" env-default:"120s"`
	} `yaml:"ollama"`
	Together struct {
		URL      string        `yaml:"url" env:"TOGETHER_URL" env-default:"https://api.together.xyz/v1/images/generations"`
		ApiKey   string        `yaml:"api_key" env:"TOGETHER_API_KEY" env-default:""`
		Model    string        `yaml:"model" env:"TOGETHER_MODEL" env-default:"black-forest-labs/FLUX.1-schnell-Free"`
		MaxSteps int           `yaml:"max_steps" env:"TOGETHER_MAX_STEPS" env-default:"4"`
		Timeout  time.Duration `yaml:"timeout" env:"TOGETHER_TIMEOUT" env-default:"120s"`
	} `yaml:"together"`
	Image struct {
		Width  int `yaml:"width" env:"IMAGE_WIDTH" env-default:"1024"`
		Height int `yaml:"height" env:"IMAGE_HEIGHT" env-default:"768"`
		Steps  int `yaml:"steps" env:"IMAGE_STEPS" env-default:"20"`
		Count  int `yaml:"count" env:"IMAGE_COUNT" env-default:"1"`
	} `yaml:"image"`
	Intent struct {
		Triggers []string `yaml:"triggers" env:"INTENT_TRIGGERS" env-default:"show,image,photo,picture,display,generate,create,draw,make"`
		Fillers  []string `yaml:"fillers" env:"INTENT_FILLERS" env-default:"show,me,a,an,the,image,of,picture,photo"`
		Prefix   string   `yaml:"prefix" env:"INTENT_PREFIX" env-default:"High quality, detailed image of"`
	} `yaml:"intent"`
	Memory struct {
		// zero keeps entries for the process lifetime
		MaxAge        time.Duration `yaml:"max_age" env:"MEMORY_MAX_AGE" env-default:"0s"`
		SweepInterval time.Duration `yaml:"sweep_interval" env:"MEMORY_SWEEP_INTERVAL" env-default:"5m"`
	} `yaml:"memory"`
	Cache struct {
		// zero values mean unbounded and never expiring
		MaxEntries int           `yaml:"max_entries" env:"CACHE_MAX_ENTRIES" env-default:"0"`
		TTL        time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"0s"`
	} `yaml:"cache"`
	Telegram struct {
		Enabled  bool   `yaml:"enabled" env:"TELEGRAM_ENABLED" env-default:"false"`
		ApiKey   string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
		Username string `yaml:"username" env:"TELEGRAM_USERNAME" env-default:""`
	} `yaml:"telegram"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"muse"`
	} `yaml:"mongo"`
}

// Load reads the YAML file at path overlaid with environment variables.
// A missing file is not an error: the environment alone is used then.
func Load(path string) (*Config, error) {
	conf := &Config{}
	var err error
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		err = cleanenv.ReadEnv(conf)
	} else {
		err = cleanenv.ReadConfig(path, conf)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}
	if err = conf.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return conf, nil
}

func MustLoad(path string) *Config {
	conf, err := Load(path)
	if err != nil {
		log.Fatal(err)
	}
	return conf
}

func (c *Config) validate() error {
	if c.Together.MaxSteps < 1 {
		return fmt.Errorf("together.max_steps must be positive, got %d", c.Together.MaxSteps)
	}
	if c.Image.Width < 1 || c.Image.Height < 1 {
		return fmt.Errorf("image dimensions must be positive, got %dx%d", c.Image.Width, c.Image.Height)
	}
	if c.Telegram.Enabled && c.Telegram.ApiKey == "" {
		return errors.New("telegram.api_key is required when telegram is enabled")
	}
	return nil
}

func (c *Config) ListenAddr() string {
	return c.Listen.BindIP + ":" + c.Listen.Port
}
