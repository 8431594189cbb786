package auth

// Claims es la identidad opaca que entrega el proveedor de login.
type Claims struct {
	UserID      string
	Email       string
	DisplayName string
}
