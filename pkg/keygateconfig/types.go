package keygateconfig

// Config defines keygate.yaml settings.
type Config struct {
	AdminID      string       `yaml:"adminId" json:"adminId"`
	Quota        int          `yaml:"quota" json:"quota"`
	Categories   []string     `yaml:"categories" json:"categories"`
	Keys         Keys         `yaml:"keys" json:"keys"`
	Entitlements Entitlements `yaml:"entitlements" json:"entitlements"`
	Ledger       Ledger       `yaml:"ledger" json:"ledger"`
	Pools        Pools        `yaml:"pools" json:"pools"`
	Redis        Redis        `yaml:"redis" json:"redis"`
	Sync         Sync         `yaml:"sync,omitempty" json:"sync,omitempty"`
	API          API          `yaml:"api,omitempty" json:"api,omitempty"`
	Replay       Replay       `yaml:"replay,omitempty" json:"replay,omitempty"`
	Log          Log          `yaml:"log,omitempty" json:"log,omitempty"`
}

// Keys controls generated key format.
type Keys struct {
	Prefix      string `yaml:"prefix" json:"prefix"`
	Digits      int    `yaml:"digits" json:"digits"`
	MaxAttempts int    `yaml:"maxAttempts" json:"maxAttempts"`
}

type Entitlements struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

type Ledger struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// Pools lists source pool files in scan order. Relative files resolve
// against Dir.
type Pools struct {
	Dir   string   `yaml:"dir" json:"dir"`
	Files []string `yaml:"files" json:"files"`
}

type Redis struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// Sync optionally populates Pools.Dir from a git remote.
type Sync struct {
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	Ref string `yaml:"ref,omitempty" json:"ref,omitempty"`
}

type API struct {
	Addr   string `yaml:"addr,omitempty" json:"addr,omitempty"`
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`
}

// Replay guards mutating API requests that carry a request id.
type Replay struct {
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`
	TTL     string `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

type Log struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}
