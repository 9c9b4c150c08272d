package auth

// Service is the account interface the transport layer consumes: register,
// login, and token verification with the deleted-account check folded in.
type Service struct {
	store  *Store
	tokens *Tokens
}

// NewService wires the account store and token signer together.
func NewService(store *Store, tokens *Tokens) *Service {
	return &Service{store: store, tokens: tokens}
}

// Register creates an account.
func (s *Service) Register(name, password string) (Identity, error) {
	return s.store.Create(name, password)
}

// Login exchanges valid credentials for a signed token.
func (s *Service) Login(name, password string) (string, error) {
	identity, err := s.store.Authenticate(name, password)
	if err != nil {
		return "", err
	}
	return s.tokens.Issue(identity)
}

// VerifyToken validates a token and confirms the encoded account still
// exists; an account deleted after token issuance fails like any other bad
// token.
func (s *Service) VerifyToken(token string) (Identity, error) {
	identity, err := s.tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	current, ok := s.store.Lookup(identity.ID)
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	return current, nil
}

// AccountExists reports whether an account id is registered; the startup
// orphan sweep uses it.
func (s *Service) AccountExists(id string) bool {
	return s.store.Exists(id)
}
