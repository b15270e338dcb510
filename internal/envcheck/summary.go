package envcheck

// Summary describes the environment with presence flags only.
type Summary struct {
	StorageType     string `json:"storageType"`
	EnableRegister  bool   `json:"enableRegister"`
	SiteName        string `json:"siteName"`
	HasUsername     bool   `json:"hasUsername"`
	HasPassword     bool   `json:"hasPassword"`
	HasUpstashURL   bool   `json:"hasUpstashUrl"`
	HasUpstashToken bool   `json:"hasUpstashToken"`
	HasRedisURL     bool   `json:"hasRedisUrl"`
	HasD1DatabaseID bool   `json:"hasD1DatabaseId"`
	AppEnv          string `json:"appEnv"`
	DockerEnv       bool   `json:"dockerEnv"`
}

// Summarize reports env without any secret values.
func Summarize(env Env) Summary {
	storageType := env.StorageType
	if storageType == "" {
		storageType = "localstorage"
	}
	siteName := env.SiteName
	if siteName == "" {
		siteName = DefaultSiteName
	}

	return Summary{
		StorageType:     storageType,
		EnableRegister:  env.EnableRegister,
		SiteName:        siteName,
		HasUsername:     env.AdminUsername != "",
		HasPassword:     env.AdminPassword != "",
		HasUpstashURL:   env.UpstashURL != "",
		HasUpstashToken: env.UpstashToken != "",
		HasRedisURL:     env.RedisURL != "",
		HasD1DatabaseID: env.D1DatabaseID != "",
		AppEnv:          env.AppEnv,
		DockerEnv:       env.Docker,
	}
}

// RuntimeHints returns advice for the detected hosting edge. Cloudflare
// Workers cannot open raw TCP connections to Redis.
func RuntimeHints(storageType string, behindCloudflare bool) []string {
	hints := []string{}
	if behindCloudflare && storageType == "redis" {
		hints = append(hints, "Cloudflare Workers may not reach Redis directly; prefer Upstash")
	}
	return hints
}
