package storage

// Roles assigned to users in the admin configuration.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// AdminConfig is the site configuration document kept by the backend.
type AdminConfig struct {
	SiteConfig SiteSettings `json:"SiteConfig" yaml:"site"`
	UserConfig UserSettings `json:"UserConfig" yaml:"users"`
}

// SiteSettings are site-wide presentation settings.
type SiteSettings struct {
	SiteName     string `json:"SiteName" yaml:"name"`
	Announcement string `json:"Announcement" yaml:"announcement"`
}

// UserSettings control who may use the site.
type UserSettings struct {
	AllowRegister bool         `json:"AllowRegister" yaml:"allow_register"`
	Users         []UserRecord `json:"Users" yaml:"list"`
}

// UserRecord lists one user in the admin configuration.
type UserRecord struct {
	Username string `json:"username" yaml:"username"`
	Role     string `json:"role" yaml:"role"`
	Banned   bool   `json:"banned,omitempty" yaml:"banned"`
}

// Clone returns a deep copy of c.
func (c *AdminConfig) Clone() *AdminConfig {
	if c == nil {
		return nil
	}
	cp := *c
	cp.UserConfig.Users = append([]UserRecord(nil), c.UserConfig.Users...)
	return &cp
}

// AddUser appends a user record with the given role.
func (c *AdminConfig) AddUser(username, role string) {
	c.UserConfig.Users = append(c.UserConfig.Users, UserRecord{Username: username, Role: role})
}

// HasUser reports whether username is listed.
func (c *AdminConfig) HasUser(username string) bool {
	for _, u := range c.UserConfig.Users {
		if u.Username == username {
			return true
		}
	}
	return false
}
