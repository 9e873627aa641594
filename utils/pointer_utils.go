package utils

// Int32Ptr returns a pointer to i.
func Int32Ptr(i int32) *int32 {
	return &i
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
