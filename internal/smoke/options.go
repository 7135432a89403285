package smoke

import "time"

// Options are the command line options of contacts-smoke.
type Options struct {
	URL          string        `short:"u" long:"url" description:"base URL of the contacts API" default:"https://localhost:5001"`
	Contacts     int           `short:"n" long:"contacts" description:"number of contacts to create" default:"200"`
	Workers      int           `short:"w" long:"workers" description:"concurrent workers" default:"8"`
	Timeout      time.Duration `short:"t" long:"timeout" description:"per-request timeout" default:"10s"`
	Deadline     time.Duration `long:"deadline" description:"overall run deadline" default:"5m"`
	Token        string        `long:"token" description:"static bearer token" env:"CONTACTS_SMOKE_TOKEN"`
	TokenURL     string        `long:"token-url" description:"OAuth2 token endpoint for the client credentials grant"`
	ClientID     string        `long:"client-id" description:"OAuth2 client id" env:"CONTACTS_SMOKE_CLIENT_ID"`
	ClientSecret string        `long:"client-secret" description:"OAuth2 client secret" env:"CONTACTS_SMOKE_CLIENT_SECRET"`
	Scope        []string      `long:"scope" description:"OAuth2 scope to request" default:"write"`
	Insecure     bool          `short:"k" long:"insecure" description:"skip TLS certificate verification"`
	Keep         bool          `long:"keep" description:"keep the created contacts instead of deleting them"`
	Verbose      bool          `short:"v" long:"verbose" description:"log every operation"`
}

// Stats holds run statistics.
type Stats struct {
	Created    int
	Verified   int
	Updated    int
	Deleted    int
	Mismatched int
	Failed     int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
