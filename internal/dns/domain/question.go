package domain

import "github.com/haukened/rr-dns/internal/dns/common/wire"

// Question is a single entry of a Message's QUESTION section: an owner name
// plus type and class, with no TTL or rdata (spec §3.7).
type Question struct {
	Name  Name
	Type  RRType
	Class RRClass
}

// NewQuestion constructs a Question and validates its fields.
func NewQuestion(name Name, rrtype RRType, class RRClass) (Question, error) {
	q := Question{Name: name, Type: rrtype, Class: class}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks structural validity of the question.
func (q Question) Validate() error {
	if !q.Name.IsAbsolute() {
		return ErrRelativeName
	}
	if !q.Type.IsValid() {
		return ErrBadLabelType
	}
	if !q.Class.IsValid() {
		return ErrBadLabelType
	}
	return nil
}

func decodeQuestion(r *wire.Reader) (Question, error) {
	name, err := NameFromWire(r)
	if err != nil {
		return Question{}, err
	}
	t, err := r.ReadU16()
	if err != nil {
		return Question{}, err
	}
	c, err := r.ReadU16()
	if err != nil {
		return Question{}, err
	}
	return Question{Name: name, Type: RRType(t), Class: RRClass(c)}, nil
}

func (q Question) encode(w *wire.Writer, ct *Compression) error {
	if err := q.Name.ToWire(w, ct); err != nil {
		return err
	}
	w.WriteU16(uint16(q.Type))
	w.WriteU16(uint16(q.Class))
	return nil
}
