package parallax

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"

	"github.com/parallaxml/parallax/trainer"
)

type Config struct {
	Training trainer.Config `toml:"training"`
	Data     DataConfig     `toml:"data"`
	Broker   BrokerConfig   `toml:"broker"`
}

type DataConfig struct {
	Path string `toml:"path"`
}

type BrokerConfig struct {
	Address  string `toml:"address"`
	Topic    string `toml:"topic"`
	ClientID string `toml:"client_id"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	QoS      uint8  `toml:"qos"`
	TimeoutS int    `toml:"timeout_s"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
