package protocol

// Apollo behaves like the generic dialect today. It exists as the hook
// point for Apollo-specific headers.
type Apollo struct {
	*Generic
}

func NewApollo(version Version, clientID string) *Apollo {
	return &Apollo{Generic: NewGeneric(version, clientID)}
}

var _ Protocol = (*Apollo)(nil)
