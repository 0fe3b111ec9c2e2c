package domain

// Principal is the already-authenticated caller handed to the core.
type Principal struct {
	UserID string
	Email  string
	Admin  bool
}
