package zone

import (
	"fmt"
	"net/netip"
	"strings"
)

type OpKind int

const (
	OpAdd OpKind = iota
	OpDelete
	OpDeleteAll
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpDeleteAll:
		return "delete_all"
	default:
		return "unknown"
	}
}

// Op is a primitive zone mutation. Addr is unset for OpDeleteAll; TTL is only used by OpAdd.
type Op struct {
	Kind     OpKind
	Hostname string
	Family   Family
	Addr     netip.Addr
	TTL      int
}

// Transaction is an ordered list of ops applied as a unit against Server.
// KeyRef is handed to the update channel out of band and never rendered into the script.
type Transaction struct {
	Server string
	KeyRef string
	Ops    []Op
}

func NewTransaction(server, keyRef string) *Transaction {
	return &Transaction{Server: server, KeyRef: keyRef}
}

func (t *Transaction) Add(rec Record) *Transaction {
	t.Ops = append(t.Ops, Op{
		Kind:     OpAdd,
		Hostname: rec.Hostname,
		Family:   rec.Family,
		Addr:     rec.Addr,
		TTL:      rec.TTL,
	})
	return t
}

func (t *Transaction) Delete(hostname string, addr netip.Addr) *Transaction {
	t.Ops = append(t.Ops, Op{
		Kind:     OpDelete,
		Hostname: hostname,
		Family:   FamilyOf(addr),
		Addr:     addr,
	})
	return t
}

func (t *Transaction) DeleteAll(hostname string, family Family) *Transaction {
	t.Ops = append(t.Ops, Op{Kind: OpDeleteAll, Hostname: hostname, Family: family})
	return t
}

func (t *Transaction) Empty() bool {
	return t == nil || len(t.Ops) == 0
}

// Count returns how many ops of kind the transaction carries.
func (t *Transaction) Count(kind OpKind) int {
	if t == nil {
		return 0
	}
	n := 0
	for _, op := range t.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Script renders the transaction in nsupdate input grammar, one directive per line.
func (t *Transaction) Script() string {
	var b strings.Builder
	fmt.Fprintf(&b, "server %s\n", t.Server)
	for _, op := range t.Ops {
		b.WriteString(op.Directive())
		b.WriteByte('\n')
	}
	b.WriteString("send\nquit\n")
	return b.String()
}

func (op Op) Directive() string {
	switch op.Kind {
	case OpAdd:
		return fmt.Sprintf("update add %s %d %s %s", op.Hostname, op.TTL, op.Family.RRType(), op.Addr)
	case OpDelete:
		return fmt.Sprintf("update delete %s %s %s", op.Hostname, op.Family.RRType(), op.Addr)
	default:
		return fmt.Sprintf("update delete %s %s", op.Hostname, op.Family.RRType())
	}
}
