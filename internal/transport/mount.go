package transport

import (
	"fmt"
	"os"

	"bazil.org/fuse"
)

// MountOptions are the user-facing knobs of the kernel mount.
type MountOptions struct {
	// AllowOther lets users other than the mounting one access the mount.
	AllowOther bool
}

// Mount attaches a new FUSE filesystem at mountpoint and returns the
// connection to serve it on.
func Mount(mountpoint string, opts MountOptions) (*fuse.Conn, error) {
	transportLogger.Info("Mounting filesystem at %s", mountpoint)

	info, err := os.Stat(mountpoint)
	if err != nil {
		return nil, fmt.Errorf("mount point not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mount point %q is not a directory", mountpoint)
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName("faultfs"),
		fuse.Subtype("faultfs"),
		fuse.DefaultPermissions(),
	}
	if opts.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	transportLogger.Debug("Mounting with %d options (allow_other=%v)", len(mountOpts), opts.AllowOther)
	c, err := fuse.Mount(mountpoint, mountOpts...)
	if err != nil {
		return nil, fmt.Errorf("mount failed: %w", err)
	}

	transportLogger.Info("Filesystem mounted successfully")
	return c, nil
}

// Unmount detaches the filesystem at mountpoint, which makes the request
// loop of its server return.
func Unmount(mountpoint string) error {
	transportLogger.Info("Unmounting filesystem from: %s", mountpoint)
	if err := fuse.Unmount(mountpoint); err != nil {
		transportLogger.Error("Unmount failed: %v", err)
		return err
	}
	transportLogger.Info("Unmount completed successfully")
	return nil
}
