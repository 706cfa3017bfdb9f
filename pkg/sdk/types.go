package sdk

type InstanceStatus string

const (
	StatusOff          InstanceStatus = "OFF"
	StatusInitializing InstanceStatus = "INITIALIZING"
	StatusOK           InstanceStatus = "OK"
)

// Terminal reports whether the status means the instance is ready for use
// and no further polling is needed. Every other value, including ones this
// client does not know about, is treated as "still creating".
func (s InstanceStatus) Terminal() bool {
	return s == StatusOK
}

type Instance struct {
	ID               string         `json:"id"`
	Owner            string         `json:"owner"`
	IP               string         `json:"ip"`
	ConnectionString string         `json:"connection_string"`
	Status           InstanceStatus `json:"status"`
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

type User struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	GroupID  string `json:"group_id,omitempty"`
	Role     Role   `json:"role,omitempty"`
}

type Users struct {
	Users []User `json:"users"`
}

type Provider string

const ProviderVultr Provider = "vultr"

type VPS struct {
	APIKey   string   `json:"apikey"`
	Provider Provider `json:"provider"`
}

type Group struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	VPS  VPS    `json:"vps"`
}
