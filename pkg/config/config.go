/*
Package config resolves the active vector-store connection and embedding
profile. Each field is looked up in layers: the profile chosen by the
explicit active selector, then the namespaced profile keys, then the legacy
flat variables, then a hardcoded fallback. Resolution happens on every call,
so a profile switch in the config file or environment is seen by the next
operation without a restart.
*/
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultProfile    = "default"
	DefaultURL        = "http://localhost:6333"
	DefaultCollection = "memories"
	DefaultProvider   = "openai"
	DefaultModel      = "text-embedding-3-small"
	DefaultDimension  = 1536
	DefaultTimeout    = 10 * time.Second
)

/*
Connection identifies a vector-store target.
*/
type Connection struct {
	Name       string
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

/*
Key returns the fields that identify the underlying handle. A change in any
of them means the handle must be rebuilt.
*/
func (conn Connection) Key() string {
	return conn.URL + "\x00" + conn.APIKey + "\x00" + conn.Collection
}

/*
Embedding describes an embedding provider profile.
*/
type Embedding struct {
	Name      string
	Provider  string
	URL       string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

func (emb Embedding) Key() string {
	return strings.Join([]string{
		emb.Provider, emb.URL, emb.APIKey, emb.Model, strconv.Itoa(emb.Dimension),
	}, "\x00")
}

/*
Resolver reads profiles out of a viper instance and the process environment.
*/
type Resolver struct {
	v      *viper.Viper
	getenv func(string) string
}

type ResolverOption func(*Resolver)

func NewResolver(v *viper.Viper, options ...ResolverOption) *Resolver {
	resolver := &Resolver{v: v, getenv: os.Getenv}

	for _, option := range options {
		option(resolver)
	}

	return resolver
}

// WithEnv replaces the environment lookup, mostly for tests.
func WithEnv(getenv func(string) string) ResolverOption {
	return func(r *Resolver) {
		r.getenv = getenv
	}
}

func (r *Resolver) ActiveConnection() Connection {
	name := r.selector("MEMORIA_ACTIVE_CONNECTION", "active.connection")
	prefix := "connections." + name + "."

	return Connection{
		Name:       name,
		URL:        r.first(prefix+"url", "QDRANT_URL", DefaultURL),
		APIKey:     r.first(prefix+"api_key", "QDRANT_API_KEY", ""),
		Collection: r.first(prefix+"collection", "QDRANT_COLLECTION", DefaultCollection),
		Timeout:    r.Timeout("timeouts.store", DefaultTimeout),
	}
}

func (r *Resolver) ActiveEmbedding() Embedding {
	name := r.selector("MEMORIA_ACTIVE_EMBEDDING", "active.embedding")
	prefix := "embeddings." + name + "."

	dimension := DefaultDimension

	if raw := r.first(prefix+"dimension", "EMBEDDING_DIMENSION", ""); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			dimension = n
		}
	}

	return Embedding{
		Name:      name,
		Provider:  r.first(prefix+"provider", "EMBEDDING_PROVIDER", DefaultProvider),
		URL:       r.first(prefix+"url", "EMBEDDING_URL", ""),
		APIKey:    r.first(prefix+"api_key", "OPENAI_API_KEY", ""),
		Model:     r.first(prefix+"model", "EMBEDDING_MODEL", DefaultModel),
		Dimension: dimension,
		Timeout:   r.Timeout("timeouts.embedding", 30*time.Second),
	}
}

func (r *Resolver) Timeout(key string, fallback time.Duration) time.Duration {
	if r.v != nil && r.v.IsSet(key) {
		if d := r.v.GetDuration(key); d > 0 {
			return d
		}
	}

	return fallback
}

/*
TaxonomyPath returns where the category file lives, expanding a leading ~.
*/
func (r *Resolver) TaxonomyPath() string {
	path := ""

	if r.v != nil {
		path = r.v.GetString("taxonomy.path")
	}

	if path == "" {
		path = "~/.memoria/categories.json"
	}

	return ExpandHome(path)
}

// CurrentProject is the project ranked with affinity when no filter is set.
func (r *Resolver) CurrentProject() string {
	if project := r.getenv("MEMORIA_PROJECT"); project != "" {
		return project
	}

	if r.v != nil {
		if project := r.v.GetString("project"); project != "" {
			return project
		}
	}

	if wd, err := os.Getwd(); err == nil {
		return filepath.Base(wd)
	}

	return ""
}

func (r *Resolver) selector(env, key string) string {
	if name := r.getenv(env); name != "" {
		return name
	}

	if r.v != nil {
		if name := r.v.GetString(key); name != "" {
			return name
		}
	}

	return DefaultProfile
}

func (r *Resolver) first(key, legacy, fallback string) string {
	if r.v != nil {
		if value := r.v.GetString(key); value != "" {
			return os.ExpandEnv(value)
		}
	}

	if legacy != "" {
		if value := r.getenv(legacy); value != "" {
			return value
		}
	}

	return fallback
}

/*
Watch keeps v in sync with its config file and calls onChange after every
reload viper performs.
*/
func Watch(v *viper.Viper, onChange func()) {
	v.OnConfigChange(func(in fsnotify.Event) {
		onChange()
	})

	v.WatchConfig()
}

func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}

	return path
}
