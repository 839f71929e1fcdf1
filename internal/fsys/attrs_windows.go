//go:build windows

package fsys

import "golang.org/x/sys/windows"

// applyReadOnly sets or clears the windows read-only attribute from
// the wire's read-only flag bit (spec §4.6).
func applyReadOnly(native string, readOnly bool) error {
	p, err := windows.UTF16PtrFromString(native)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	if readOnly {
		attrs |= windows.FILE_ATTRIBUTE_READONLY
	} else {
		attrs &^= windows.FILE_ATTRIBUTE_READONLY
	}
	return windows.SetFileAttributes(p, attrs)
}
