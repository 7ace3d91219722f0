package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"bot-rag-backend/config"

	"gopkg.in/yaml.v3"
)

func generateJWTSecret() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

// configFragment 生成可直接粘贴到 config.yaml 的 jwt 配置段
func configFragment(secret string) ([]byte, error) {
	fragment := struct {
		JWT config.JWTConfig `yaml:"jwt"`
	}{
		JWT: config.JWTConfig{
			SecretKey: secret,
			Expire:    config.Default().JWT.Expire,
		},
	}
	return yaml.Marshal(fragment)
}

func main() {
	secret, err := generateJWTSecret()
	if err != nil {
		slog.Error("Error generating secret", "err", err)
		os.Exit(1)
	}

	fragment, err := configFragment(secret)
	if err != nil {
		slog.Error("Error encoding config fragment", "err", err)
		os.Exit(1)
	}
	fmt.Print(string(fragment))
}
