// Copyright (c) 2023-2024 The csmined developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

// ConfigFileContents is a string containing the commented example config for
// csmined.
const ConfigFileContents = `[Application Options]
; ------------------------------------------------------------------------------
; Debug settings
; ------------------------------------------------------------------------------
; Debug logging level.
; Valid levels are {trace, debug, info, warn, error, critical}
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set
; log level for individual subsystems.  Use csmined --debuglevel=show to
; list available subsystems.
; debuglevel=

; ------------------------------------------------------------------------------
; Data settings
; ------------------------------------------------------------------------------
; The home directory of csmined.
; homedir=

; The directory to store data.
; datadir=

; The config file directory.
; configfile=

; The log file directory.
; logdir=

; ------------------------------------------------------------------------------
; DB settings
; ------------------------------------------------------------------------------
; The database file, when using the bolt database.
; dbfile=

; Use a postgres database instead of bolt.
; postgres=false

; Postgres connection settings, when using a postgres database.
; postgreshost=
; postgresport=
; postgresuser=
; postgrespass=
; postgresdbname=

; ------------------------------------------------------------------------------
; API settings
; ------------------------------------------------------------------------------
; The ip:port to serve the status and admin API on.
; apilisten=

; The admin password for the API.
; adminpass=

; ------------------------------------------------------------------------------
; Mining settings
; ------------------------------------------------------------------------------
; The total CS issued per mined block.
; blockreward=

; The number of seconds between mining rounds.
; mineinterval=
`
