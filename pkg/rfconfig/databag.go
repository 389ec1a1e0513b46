package rfconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Side identifies which half of the relation a databag belongs to.
type Side string

const (
	SideProvider Side = "provider"
	SideRequirer Side = "requirer"
)

// remote returns the counterpart side.
func (s Side) remote() Side {
	if s == SideProvider {
		return SideRequirer
	}
	return SideProvider
}

// Databag is the transport for one side of a relation. Implementations
// must treat a missing relation as soft absence on reads and as
// ErrRelationNotCreated on writes.
type Databag interface {
	// Created reports whether the relation exists at all.
	Created(ctx context.Context) (bool, error)
	// Remote returns the counterpart's bag. ok is false when the relation
	// does not exist or the counterpart has not joined yet.
	Remote(ctx context.Context) (data map[string]string, ok bool, err error)
	// PublishLocal replaces this side's bag.
	PublishLocal(ctx context.Context, data map[string]string) error
}

// ConfigMapDatabag realises a relation as a shared ConfigMap: the relation
// exists iff the ConfigMap exists (its lifecycle is owned by whoever wires
// the two operators together), and each side keeps its bag as a JSON
// object under its own data key. A side has "joined" once its key is
// present, even when the bag is empty.
type ConfigMapDatabag struct {
	client    kubernetes.Interface
	namespace string
	relation  string
	side      Side
}

// NewConfigMapDatabag returns a databag for one side of the named
// relation in the given namespace.
func NewConfigMapDatabag(client kubernetes.Interface, namespace, relation string, side Side) *ConfigMapDatabag {
	return &ConfigMapDatabag{
		client:    client,
		namespace: namespace,
		relation:  relation,
		side:      side,
	}
}

// configMapName translates a relation name into a DNS-1123 object name.
func (b *ConfigMapDatabag) configMapName() string {
	return strings.ReplaceAll(b.relation, "_", "-")
}

func (b *ConfigMapDatabag) Created(ctx context.Context) (bool, error) {
	_, err := b.client.CoreV1().ConfigMaps(b.namespace).Get(ctx, b.configMapName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting relation %q: %w", b.relation, err)
	}
	return true, nil
}

func (b *ConfigMapDatabag) Remote(ctx context.Context) (map[string]string, bool, error) {
	cm, err := b.client.CoreV1().ConfigMaps(b.namespace).Get(ctx, b.configMapName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting relation %q: %w", b.relation, err)
	}
	raw, joined := cm.Data[string(b.side.remote())]
	if !joined {
		return nil, false, nil
	}
	data := map[string]string{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, false, fmt.Errorf("decoding %s bag of relation %q: %w", b.side.remote(), b.relation, err)
		}
	}
	return data, true, nil
}

func (b *ConfigMapDatabag) PublishLocal(ctx context.Context, data map[string]string) error {
	cms := b.client.CoreV1().ConfigMaps(b.namespace)
	cm, err := cms.Get(ctx, b.configMapName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrRelationNotCreated, b.relation)
	}
	if err != nil {
		return fmt.Errorf("getting relation %q: %w", b.relation, err)
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s bag of relation %q: %w", b.side, b.relation, err)
	}
	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	cm.Data[string(b.side)] = string(encoded)
	if _, err := cms.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("updating relation %q: %w", b.relation, err)
	}
	return nil
}
