// Package config parses the jobs-store credential file of spec §6: a
// YAML mapping with sections jobs_db, reporting_db and odin_db,
// supplied to the process at startup. reporting_db and odin_db are
// external collaborators (spec §1) the core never connects to; this
// package validates and carries them so a co-located process can read
// them back, per SPEC_FULL §6.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linlanniao/odinscheduler/internal/store"
)

// DBSection is one jobs_db/reporting_db/odin_db mapping (spec §6).
type DBSection struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Passwd  string `yaml:"passwd"`
	Backend string `yaml:"backend,omitempty"`
}

// Credentials is the parsed jobs-store credential file.
type Credentials struct {
	JobsDB      DBSection `yaml:"jobs_db"`
	ReportingDB DBSection `yaml:"reporting_db"`
	OdinDB      DBSection `yaml:"odin_db"`
}

// Load reads and parses the credential file at path, per spec §6.
// A missing or malformed file is a startup configuration failure
// (spec §6 exit codes: nonzero on missing credentials).
func Load(path string) (*Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file %s: %w", path, err)
	}
	var creds Credentials
	if err := yaml.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials file %s: %w", path, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

// Validate checks jobs_db is complete enough to open a Store, and that
// reporting_db/odin_db, if given a host at all, carry a port too —
// the core forwards those sections without connecting to them, so this
// is the only check they get.
func (c *Credentials) Validate() error {
	if c.JobsDB.Host == "" {
		return fmt.Errorf("jobs_db.host is required")
	}
	switch store.Backend(c.JobsDB.Backend) {
	case store.BackendPostgres, store.BackendMongo:
	default:
		return fmt.Errorf("jobs_db.backend must be %q or %q, got %q",
			store.BackendPostgres, store.BackendMongo, c.JobsDB.Backend)
	}
	for name, sec := range map[string]DBSection{"reporting_db": c.ReportingDB, "odin_db": c.OdinDB} {
		if sec.Host != "" && sec.Port == 0 {
			return fmt.Errorf("%s.port is required when %s.host is set", name, name)
		}
	}
	return nil
}

// StoreConfig projects jobs_db into the internal/store package's
// Config, adding the connect timeout the Postgres backend bounds its
// initial connection check with.
func (c *Credentials) StoreConfig(connectTimeout time.Duration, documentDir string) store.Config {
	return store.Config{
		Backend:        store.Backend(c.JobsDB.Backend),
		Host:           c.JobsDB.Host,
		Port:           c.JobsDB.Port,
		User:           c.JobsDB.User,
		Passwd:         c.JobsDB.Passwd,
		DocumentDir:    documentDir,
		ConnectTimeout: connectTimeout,
	}
}
