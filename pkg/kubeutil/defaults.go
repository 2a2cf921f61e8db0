package kubeutil

import (
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// FindKubeconfig returns the path of the kubeconfig file to be used.
//
// It searches kubeconfig from (the latter is prior)
//
// - `~/.kube/config`
//
// - environmental variable `KUBECONFIG`
//
// - the file found first from the searchPath
//
// When no files are found, it returns "".
func FindKubeconfig(searchPath ...string) string {
	isFile := func(p string) bool {
		s, err := os.Stat(p)
		return err == nil && !s.IsDir()
	}

	kubeconfig := ""

	// priority 1 (least): ~/.kube/config
	if home := homedir.HomeDir(); home != "" {
		if p := filepath.Join(home, ".kube", "config"); isFile(p) {
			kubeconfig = p
		}
	}

	// priority 2: envvar KUBECONFIG
	if k := os.Getenv("KUBECONFIG"); k != "" && isFile(k) {
		kubeconfig = k
	}

	// priority 3 (most): search path
	for _, sp := range searchPath {
		if sp != "" && isFile(sp) {
			kubeconfig = sp
			break
		}
	}

	return kubeconfig
}

// ConnectToK8s creates *kubernetes.Clientset.
//
// The kubeconfig is detected with FindKubeconfig(searchPath...).
// When no files are found, it tries to use in-cluster config.
func ConnectToK8s(searchPath ...string) (*kubernetes.Clientset, error) {
	var config *rest.Config
	var err error
	if kubeconfig := FindKubeconfig(searchPath...); kubeconfig == "" {
		config, err = rest.InClusterConfig()
	} else {
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, err
	}

	return kubernetes.NewForConfig(config)
}
