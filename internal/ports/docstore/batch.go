package docstore

type OpKind string

const (
	OpCreate OpKind = "create"
	OpSet    OpKind = "set"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

type Op struct {
	Kind   OpKind
	Path   string
	Fields map[string]any
}

// Batch acumula escrituras multi-documento; se aplican en orden dentro de Commit.
type Batch struct {
	ops []Op
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Create(path string, fields map[string]any) *Batch {
	b.ops = append(b.ops, Op{Kind: OpCreate, Path: path, Fields: Clone(fields)})
	return b
}

func (b *Batch) Set(path string, fields map[string]any) *Batch {
	b.ops = append(b.ops, Op{Kind: OpSet, Path: path, Fields: Clone(fields)})
	return b
}

func (b *Batch) Update(path string, fields map[string]any) *Batch {
	b.ops = append(b.ops, Op{Kind: OpUpdate, Path: path, Fields: Clone(fields)})
	return b
}

func (b *Batch) Delete(path string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDelete, Path: path})
	return b
}

func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	out := make([]Op, len(b.ops))
	copy(out, b.ops)
	return out
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Parents devuelve las colecciones tocadas por el batch, sin repetir y en orden de aparición.
func (b *Batch) Parents() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, op := range b.Ops() {
		parent, _, err := Split(op.Path)
		if err != nil {
			continue
		}
		if _, ok := seen[parent]; ok {
			continue
		}
		seen[parent] = struct{}{}
		out = append(out, parent)
	}
	return out
}
