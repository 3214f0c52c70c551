package app

// Mutation snapshots the current value, applies an optimistic one, then
// either commits the authoritative value or restores the snapshot when commit
// fails. Callers that guard target with a lock must reacquire it inside
// commit before returning.
func Mutation[T any](target *T, optimistic T, commit func() (T, error)) error {
	previous := *target
	*target = optimistic
	final, err := commit()
	if err != nil {
		*target = previous
		return err
	}
	*target = final
	return nil
}
