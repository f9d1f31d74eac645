// Package systemd removes the scheduled-backup registration the installed
// program manages for itself: a service/timer unit pair with a fixed name.
//
// The units are owned by the host's service manager and created elsewhere;
// this package only stops, disables and deletes them during uninstall,
// tolerating hosts without systemd and units that were never registered.
package systemd
