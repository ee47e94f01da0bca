package session

// Actor identifies who the cart currently belongs to. The engine never
// authenticates anyone; it only observes the identifier the hosting
// authentication layer hands it and treats the user ID as an opaque string.
// The zero value is the anonymous guest.
type Actor struct {
	UserID string
}

// Guest returns the anonymous actor.
func Guest() Actor {
	return Actor{}
}

// User returns the actor for an authenticated user.
func User(id string) Actor {
	return Actor{UserID: id}
}

// IsGuest reports whether the actor is the anonymous guest.
func (a Actor) IsGuest() bool {
	return a.UserID == ""
}

// Key derives the durable storage slot for the actor. It is a pure function
// of the actor and incorporates nothing else.
func (a Actor) Key() string {
	if a.IsGuest() {
		return "cart:guest"
	}
	return "cart:" + a.UserID
}

// String renders the actor for logs.
func (a Actor) String() string {
	if a.IsGuest() {
		return "guest"
	}
	return "user:" + a.UserID
}
