package identity

// Registration is the input to account creation.
type Registration struct {
	Email       string
	Password    string
	Phone       string
	DisplayName string
}
