// Package config loads the structured YAML configuration document described
// in SPEC_FULL.md §4.8, superseding the teacher's flat key=value
// summercat.com/config format (which this repo does not import — Parser/Codec
// and config parsing are both named as in-core/ambient concerns here, so both
// are reimplemented rather than pulled in as the teacher author's own small
// libraries).
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v2"
)

// ServerLink describes one configured peer server we may link to/accept a
// link from.
type ServerLink struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Pass string `yaml:"pass"`
	// Class is a free-form connection class label (e.g. "hub", "leaf"),
	// carried but not interpreted by the core.
	Class string `yaml:"class"`
}

// Oper is one operator credential entry. Password is stored hashed (bcrypt)
// once Load has run; the plaintext from the file is never retained.
type Oper struct {
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"-"`
}

// Config is the root configuration document.
type Config struct {
	ListenHost string `yaml:"listen_host"`
	ListenPort string `yaml:"listen_port"`

	ServerName string `yaml:"server_name"`
	ServerInfo string `yaml:"server_info"`
	Version    string `yaml:"version"`
	CreatedDate string `yaml:"created_date"`
	MOTDFile    string `yaml:"motd_file"`
	JupeFile    string `yaml:"jupe_file"`

	// Numeric is the 2-character P10 server numeric (spec §4.1), overridable
	// by the -sid CLI flag.
	Numeric string `yaml:"numeric"`

	MaxNickLength int `yaml:"max_nick_length"`

	WakeupTime time.Duration `yaml:"wakeup_time"`
	PingTime   time.Duration `yaml:"ping_time"`
	DeadTime   time.Duration `yaml:"dead_time"`

	Opers   []Oper                `yaml:"opers"`
	Servers []ServerLink           `yaml:"servers"`
	Features map[string]interface{} `yaml:"features"`

	// TLS is optional; TLS termination itself remains an external concern
	// (spec §1) but the core still needs to know where the material lives so
	// the connection layer (outside this core) can be configured.
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	// DDBPath is read from the file but not used by the core; no DDB is
	// consulted.
	DDBPath string `yaml:"ddb_path"`
}

type yamlDoc struct {
	ListenHost    string                 `yaml:"listen_host"`
	ListenPort    string                 `yaml:"listen_port"`
	ServerName    string                 `yaml:"server_name"`
	ServerInfo    string                 `yaml:"server_info"`
	Version       string                 `yaml:"version"`
	CreatedDate   string                 `yaml:"created_date"`
	MOTDFile      string                 `yaml:"motd_file"`
	JupeFile      string                 `yaml:"jupe_file"`
	Numeric       string                 `yaml:"numeric"`
	MaxNickLength int                    `yaml:"max_nick_length"`
	WakeupTime    string                 `yaml:"wakeup_time"`
	PingTime      string                 `yaml:"ping_time"`
	DeadTime      string                 `yaml:"dead_time"`
	Opers         []yamlOper             `yaml:"opers"`
	Servers       []ServerLink           `yaml:"servers"`
	Features      map[string]interface{} `yaml:"features"`
	TLSCertFile   string                 `yaml:"tls_cert_file"`
	TLSKeyFile    string                 `yaml:"tls_key_file"`
	DDBPath       string                 `yaml:"ddb_path"`
}

type yamlOper struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading configuration file")
	}

	var doc yamlDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing configuration YAML")
	}

	required := map[string]string{
		"listen_host":  doc.ListenHost,
		"listen_port":  doc.ListenPort,
		"server_name":  doc.ServerName,
		"server_info":  doc.ServerInfo,
		"version":      doc.Version,
		"created_date": doc.CreatedDate,
		"numeric":      doc.Numeric,
	}
	for key, v := range required {
		if v == "" {
			return nil, errors.Errorf("missing required configuration key: %s", key)
		}
	}

	cfg := &Config{
		ListenHost:  doc.ListenHost,
		ListenPort:  doc.ListenPort,
		ServerName:  doc.ServerName,
		ServerInfo:  doc.ServerInfo,
		Version:     doc.Version,
		CreatedDate: doc.CreatedDate,
		MOTDFile:    doc.MOTDFile,
		JupeFile:    doc.JupeFile,
		Numeric:     doc.Numeric,
		MaxNickLength: doc.MaxNickLength,
		Servers:     doc.Servers,
		Features:    doc.Features,
		TLSCertFile: doc.TLSCertFile,
		TLSKeyFile:  doc.TLSKeyFile,
		DDBPath:     doc.DDBPath,
	}

	if cfg.MaxNickLength == 0 {
		cfg.MaxNickLength = 15
	}

	if doc.WakeupTime != "" {
		cfg.WakeupTime, err = time.ParseDuration(doc.WakeupTime)
		if err != nil {
			return nil, errors.Wrap(err, "parsing wakeup_time")
		}
	} else {
		cfg.WakeupTime = 5 * time.Second
	}

	if doc.PingTime != "" {
		cfg.PingTime, err = time.ParseDuration(doc.PingTime)
		if err != nil {
			return nil, errors.Wrap(err, "parsing ping_time")
		}
	} else {
		cfg.PingTime = 90 * time.Second
	}

	if doc.DeadTime != "" {
		cfg.DeadTime, err = time.ParseDuration(doc.DeadTime)
		if err != nil {
			return nil, errors.Wrap(err, "parsing dead_time")
		}
	} else {
		cfg.DeadTime = 240 * time.Second
	}

	for _, o := range doc.Opers {
		hash, err := bcrypt.GenerateFromPassword([]byte(o.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, errors.Wrapf(err, "hashing password for oper %s", o.Name)
		}
		cfg.Opers = append(cfg.Opers, Oper{Name: o.Name, PasswordHash: string(hash)})
	}

	if len(cfg.Numeric) != 2 {
		return nil, errors.New("numeric must be a 2-character P10 server numeric")
	}

	return cfg, nil
}

// VerifyOperPassword checks a plaintext password attempt against the
// configured, hashed oper credential for name.
func (c *Config) VerifyOperPassword(name, password string) bool {
	for _, o := range c.Opers {
		if o.Name != name {
			continue
		}
		return bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password)) == nil
	}
	return false
}

// FindServerLink returns the configured link entry for a peer server name.
func (c *Config) FindServerLink(name string) (ServerLink, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerLink{}, false
}
