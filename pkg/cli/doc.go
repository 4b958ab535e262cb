// Package cli implements orgctl, the operator command line for the
// membership engine.
//
// # Overview
//
// Every command builds an engine from configuration (MEMBERSHIP_* variables
// or -config), seeds the built-in roles and runs one operation. Results are
// printed as indented JSON. Operations that succeeded with side-effect
// failures print their result and log the warning.
//
// # Commands
//
//	orgctl user add -id alice -email alice@example.com
//	orgctl org create -name Acme -owner alice -type enterprise
//	orgctl org usage -id <org>
//	orgctl member add -user bob -org <org> -roles <role-id>,<role-id>
//	orgctl perm restrict -user bob -org <org> -permission billing:*
//	orgctl perm check -user bob -org <org> -permission order:approve
//	orgctl role create -org <org> -name Buyer -permissions order:create,order:read
//	orgctl invite create -email carol@example.com -org <org> -expires-in 24h
//	orgctl invite sweep
//
// Global flags come before the command:
//
//	orgctl -config membership.yaml -actor alice -verbose org get -id <org>
package cli
