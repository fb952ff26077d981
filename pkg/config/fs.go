package config

import "github.com/spf13/afero"

// fs is the filesystem that config files and shared directories are read
// from. Tests replace it with afero.NewMemMapFs().
var fs = afero.NewOsFs()
