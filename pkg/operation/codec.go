package operation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ChainClass is the class of an encoded chain.
const ChainClass = "OperationChain"

// Factory returns a new zero operation to decode into.
type Factory func() Operation

// Codec encodes operations as JSON objects tagged with a "class" field and
// decodes them back into the registered concrete type.
//
// Example:
//
//	codec := operation.NewCodec()
//	data, _ := codec.Encode(&operation.GetAllElements{})
//	// {"class":"GetAllElements"}
//	op, _ := codec.Decode(data)
type Codec struct {
	mu        sync.RWMutex
	factories map[string]Factory
	names     map[reflect.Type]string
}

// NewCodec returns a codec with every built-in operation registered.
func NewCodec() *Codec {
	c := &Codec{factories: make(map[string]Factory), names: make(map[reflect.Type]string)}
	for _, f := range []Factory{
		func() Operation { return &ToSet{} },
		func() Operation { return &Limit{} },
		func() Operation { return &AddElements{} },
		func() Operation { return &GetElements{} },
		func() Operation { return &GetAllElements{} },
		func() Operation { return &GetAdjacentIds{} },
		func() Operation { return &GetJobDetails{} },
		func() Operation { return &GetAllJobDetails{} },
		func() Operation { return &ExportToResultCache{} },
		func() Operation { return &GetResultCacheExport{} },
	} {
		c.Register(Name(f()), f)
	}
	return c
}

// Register adds an operation class. Registering a name again replaces it.
func (c *Codec) Register(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
	c.names[reflect.TypeOf(f())] = name
}

// Classes returns the registered class names, sorted.
func (c *Codec) Classes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for name := range c.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New returns a new zero operation of class.
func (c *Codec) New(class string) (Operation, error) {
	if class == ChainClass {
		return &Chain{}, nil
	}
	c.mu.RLock()
	f, ok := c.factories[class]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown class %q", ErrInvalidOperation, class)
	}
	return f(), nil
}

// Name returns the default class name of op: its type name.
func Name(op Operation) string {
	if _, ok := op.(*Chain); ok {
		return ChainClass
	}
	t := reflect.TypeOf(op)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

func (c *Codec) className(op Operation) (string, error) {
	if _, ok := op.(*Chain); ok {
		return ChainClass, nil
	}
	c.mu.RLock()
	name, ok := c.names[reflect.TypeOf(op)]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %T is not registered", ErrInvalidOperation, op)
	}
	return name, nil
}

// Encode marshals op with its class.
func (c *Codec) Encode(op Operation) ([]byte, error) {
	if ch, ok := op.(*Chain); ok {
		return c.EncodeChain(ch)
	}
	name, err := c.className(op)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}
	return withClass(name, body)
}

// Decode unmarshals an operation or a chain.
func (c *Codec) Decode(data []byte) (Operation, error) {
	var head struct {
		Class string `json:"class"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	if head.Class == ChainClass {
		ch, err := c.DecodeChain(data)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	op, err := c.New(head.Class)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, op); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrInvalidOperation, head.Class, err)
	}
	return op, nil
}

type chainJSON struct {
	Class      string            `json:"class"`
	Operations []json.RawMessage `json:"operations"`
	Options    map[string]string `json:"options,omitempty"`
}

// EncodeChain marshals a chain and its steps.
func (c *Codec) EncodeChain(ch *Chain) ([]byte, error) {
	out := chainJSON{Class: ChainClass, Options: ch.Opts}
	for i, op := range ch.Operations {
		data, err := c.Encode(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		out.Operations = append(out.Operations, data)
	}
	return json.Marshal(out)
}

// DecodeChain unmarshals a chain. A single encoded operation is accepted
// and wrapped in a one-step chain.
func (c *Codec) DecodeChain(data []byte) (*Chain, error) {
	var raw chainJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	if raw.Class != ChainClass {
		op, err := c.Decode(data)
		if err != nil {
			return nil, err
		}
		return NewChain(op), nil
	}
	ch := &Chain{Base: Base{Opts: raw.Options}}
	for i, opData := range raw.Operations {
		op, err := c.Decode(opData)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ch.Operations = append(ch.Operations, op)
	}
	return ch, nil
}

func withClass(name string, body []byte) ([]byte, error) {
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("%w: %s does not encode to an object", ErrInvalidOperation, name)
	}
	class, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"class":`)
	buf.Write(class)
	rest := bytes.TrimSpace(body[1:])
	if len(rest) > 0 && rest[0] != '}' {
		buf.WriteByte(',')
	}
	buf.Write(rest)
	return buf.Bytes(), nil
}
