package proxypool

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/grigta/outreach/pkg/crypto"
)

type inventoryFile struct {
	Proxies []inventoryEntry `yaml:"proxies"`
}

type inventoryEntry struct {
	ID                string   `yaml:"id"`
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	Username          string   `yaml:"username"`
	Password          string   `yaml:"password"`
	PasswordEncrypted string   `yaml:"password_encrypted"`
	Protocol          Protocol `yaml:"protocol"`
	Quality           Quality  `yaml:"quality"`
	Country           string   `yaml:"country"`
	Provider          string   `yaml:"provider"`
}

// LoadInventory reads a YAML proxy inventory. Environment variables in
// usernames and plaintext passwords are expanded; password_encrypted
// values are decrypted with the given encryptor.
func LoadInventory(path string, enc *crypto.Encryptor) ([]*ProxyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy inventory: %w", err)
	}

	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse proxy inventory: %w", err)
	}

	proxies := make([]*ProxyConfig, 0, len(file.Proxies))
	for i, entry := range file.Proxies {
		if entry.Host == "" || entry.Port == 0 {
			return nil, fmt.Errorf("proxy entry %d: host and port are required", i)
		}

		password := os.ExpandEnv(entry.Password)
		if entry.PasswordEncrypted != "" {
			if enc == nil {
				return nil, fmt.Errorf("proxy entry %d: encrypted password but no encryption key configured", i)
			}
			password, err = enc.Decrypt(entry.PasswordEncrypted)
			if err != nil {
				return nil, fmt.Errorf("proxy entry %d: failed to decrypt password: %w", i, err)
			}
		}

		proxies = append(proxies, &ProxyConfig{
			ID:       entry.ID,
			Host:     entry.Host,
			Port:     entry.Port,
			Username: os.ExpandEnv(entry.Username),
			Password: password,
			Protocol: entry.Protocol,
			Quality:  entry.Quality,
			Country:  entry.Country,
			Provider: entry.Provider,
		})
	}
	return proxies, nil
}

// LoadFromFile populates the pool from a YAML inventory.
func (p *Pool) LoadFromFile(path string, enc *crypto.Encryptor) (int, error) {
	proxies, err := LoadInventory(path, enc)
	if err != nil {
		return 0, err
	}
	if err := p.AddBatch(proxies); err != nil {
		return 0, err
	}
	return len(proxies), nil
}
