package repo

// Models lists every table owned by this service, in creation order.
func Models() []interface{} {
	return []interface{}{
		new(Newsletter),
		new(Analytics),
		new(LinkClick),
		new(ClickFingerprint),
		new(OpenFingerprint),
		new(Subscriber),
	}
}
