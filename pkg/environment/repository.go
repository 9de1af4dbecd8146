package environment

// Repository persists the registry state: one record per environment, a
// monotonic allocation counter and the current-selection pointer.
type Repository interface {
	Find(name string) (*Environment, error)
	FindAll() ([]string, error)
	Create(env *Environment) error
	Delete(name string) error
	Current() (string, error)
	SetCurrent(name string) error
	ClearCurrent() error
	// NextNumber increments and persists the allocation counter, returning
	// the new value. The counter is never decremented or reused.
	NextNumber() (int64, error)
	// Compact removes the counter and current-selection files when no
	// environment records remain.
	Compact() error
}
