package config

import "github.com/sidkik/dfsync/pkg/errors"

const (
	// DefaultConfigPath is where the dfsync config is read from unless
	// another path is given on the command line.
	DefaultConfigPath = "~/.dfsync.yaml"

	// InitialConfigVersion is the version assumed for config files that
	// don't specify one.
	InitialConfigVersion = "v1alpha1"

	// SupportedConfigVersion is the config version understood by this
	// binary.
	SupportedConfigVersion = "v1alpha1"

	// DefaultHost is the default address of the control channel.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the default port of the control channel.
	DefaultPort = 8910

	// DefaultMaxClients is the default limit on concurrently logged in
	// clients.
	DefaultMaxClients = 3
)

// Vote policies for answering QUERYDELETE notifications.
const (
	VoteYes = "yes"
	VoteNo  = "no"
	VoteAsk = "ask"
)

// Config is the contents of the dfsync config file.
type Config struct {
	Version string `json:"version,omitempty"`
	Server  Server `json:"server,omitempty"`
	Client  Client `json:"client,omitempty"`
}

// Server configures `dfsync server`.
type Server struct {
	CommandHost string `json:"host,omitempty"`
	CommandPort int    `json:"port,omitempty"`

	// DataHost is the address that data channels are bound to and
	// advertised on. It defaults to CommandHost.
	DataHost string `json:"dataHost,omitempty"`

	MaxClients int    `json:"maxClients,omitempty"`
	Directory  string `json:"directory,omitempty"`

	// AuditLog is a path that coordinator events are appended to as JSON.
	// Events are discarded if it's empty.
	AuditLog string `json:"auditLog,omitempty"`
}

// Client configures `dfsync client`.
type Client struct {
	ServerHost string `json:"server,omitempty"`
	ServerPort int    `json:"port,omitempty"`
	Username   string `json:"user,omitempty"`
	Directory  string `json:"directory,omitempty"`
	Vote       string `json:"vote,omitempty"`

	// PushExisting pushes every file in Directory right after logging in.
	PushExisting bool `json:"pushExisting,omitempty"`
}

// Default returns the config used when no config file exists.
func Default() Config {
	return Config{
		Version: InitialConfigVersion,
		Server: Server{
			CommandHost: DefaultHost,
			CommandPort: DefaultPort,
			MaxClients:  DefaultMaxClients,
		},
		Client: Client{
			ServerHost: DefaultHost,
			ServerPort: DefaultPort,
			Vote:       VoteAsk,
		},
	}
}

// GetDataHost returns the host that data channels should use.
func (s Server) GetDataHost() string {
	if s.DataHost == "" {
		return s.CommandHost
	}
	return s.DataHost
}

// Validate checks the fields that can't be checked by the parser.
func (s Server) Validate() error {
	if s.MaxClients < 1 {
		return errors.NewFriendlyError("maxClients must be at least 1, got %d", s.MaxClients)
	}
	if s.CommandPort < 0 || s.CommandPort > 65535 {
		return errors.NewFriendlyError("invalid port %d", s.CommandPort)
	}
	if s.Directory == "" {
		return errors.MissingFieldError{Field: "server.directory"}
	}
	return nil
}

// Validate checks the fields that can't be checked by the parser.
func (c Client) Validate() error {
	switch c.Vote {
	case VoteYes, VoteNo, VoteAsk:
	default:
		return errors.NewFriendlyError("unknown vote policy %q. "+
			"Expected one of %q, %q or %q.", c.Vote, VoteYes, VoteNo, VoteAsk)
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return errors.NewFriendlyError("invalid port %d", c.ServerPort)
	}
	if c.Username == "" {
		return errors.MissingFieldError{Field: "client.user"}
	}
	if c.Directory == "" {
		return errors.MissingFieldError{Field: "client.directory"}
	}
	return nil
}
