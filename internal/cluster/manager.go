package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

type ContextInfo struct {
	Name      string `json:"name"`
	Cluster   string `json:"cluster"`
	AuthInfo  string `json:"authInfo"`
	Namespace string `json:"namespace,omitempty"`
}

// Manager resolves kubeconfig contexts to cached clientsets. Context names
// double as the cluster identifiers used by the watch layer, so any known
// context can be dialed, not just the active one.
type Manager struct {
	mu sync.RWMutex

	kubeconfigPath string
	rawConfig      api.Config

	activeContext string

	clients map[string]*Clients
}

type Clients struct {
	RestConfig *rest.Config
	Clientset  *kubernetes.Clientset
	Discovery  discovery.DiscoveryInterface
}

func defaultKubeconfigPath() string {
	if v := os.Getenv("KUBECONFIG"); v != "" {
		// clientcmd can merge ':'-separated lists; we take the first.
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kube", "config")
}

func NewManager() (*Manager, error) {
	path := defaultKubeconfigPath()

	loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: path}
	cfg, err := loadingRules.Load()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}

	m := &Manager{
		kubeconfigPath: path,
		rawConfig:      *cfg,
		activeContext:  cfg.CurrentContext,
		clients:        map[string]*Clients{},
	}
	return m, nil
}

func (m *Manager) ListContexts() []ContextInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ContextInfo, 0, len(m.rawConfig.Contexts))
	for name, ctx := range m.rawConfig.Contexts {
		out = append(out, ContextInfo{
			Name:      name,
			Cluster:   ctx.Cluster,
			AuthInfo:  ctx.AuthInfo,
			Namespace: ctx.Namespace,
		})
	}
	return out
}

func (m *Manager) ActiveContext() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeContext
}

func (m *Manager) SetActiveContext(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rawConfig.Contexts[name]; !ok {
		return fmt.Errorf("unknown context: %s", name)
	}
	m.activeContext = name
	return nil
}

// GetClients returns clients for the active context.
func (m *Manager) GetClients(ctx context.Context) (*Clients, string, error) {
	m.mu.RLock()
	active := m.activeContext
	m.mu.RUnlock()

	c, err := m.ClientsFor(ctx, active)
	return c, active, err
}

// ClientsFor builds (or reuses) clients for a named context. Building via
// clientcmd keeps exec-plugin auth working (OIDC and friends).
func (m *Manager) ClientsFor(_ context.Context, name string) (*Clients, error) {
	m.mu.RLock()
	if _, ok := m.rawConfig.Contexts[name]; !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("unknown context: %s", name)
	}
	if c, ok := m.clients[name]; ok {
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	overrides := &clientcmd.ConfigOverrides{CurrentContext: name}
	loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: m.kubeconfigPath}
	cc := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)

	restCfg, err := cc.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build rest config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("new clientset: %w", err)
	}

	disc, err := discovery.NewDiscoveryClientForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("new discovery: %w", err)
	}

	clients := &Clients{
		RestConfig: restCfg,
		Clientset:  clientset,
		Discovery:  disc,
	}

	m.mu.Lock()
	m.clients[name] = clients
	m.mu.Unlock()

	return clients, nil
}
