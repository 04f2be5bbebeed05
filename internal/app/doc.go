// Package app is the composition root. It defines the App struct, its
// configuration, and the runtime lifecycle: loading the patch, standing up
// the bus, engine, scheduler and manager, serving the control surface, and
// shutting everything down in order. It stays decoupled from any specific
// entrypoint like a CLI.
package app
