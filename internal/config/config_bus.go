package config

// BusConfig selects A5's transport. Type "kafka" or "rabbit" is accepted
// but resolves to the in-process bus with a logged warning: no corpus
// repo vendors a broker client for either (see DESIGN.md's A5 entry).
type BusConfig struct {
	Type    string   `yaml:"type"`
	Brokers []string `yaml:"brokers"`
	URLs    []string `yaml:"urls"`
}
