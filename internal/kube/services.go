package kube

import (
	"context"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"

	"kdash/internal/kube/dto"
)

func ListServices(ctx context.Context, cs kubernetes.Interface, namespace string) ([]dto.ServiceRow, error) {
	services, err := cs.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	// Endpoint readiness is decoration; a restricted user still gets the list.
	endpointsByName := map[string]*corev1.Endpoints{}
	if endpoints, err := cs.CoreV1().Endpoints(namespace).List(ctx, metav1.ListOptions{}); err == nil {
		for i := range endpoints.Items {
			ep := &endpoints.Items[i]
			endpointsByName[ep.Name] = ep
		}
	}

	now := time.Now()
	out := make([]dto.ServiceRow, 0, len(services.Items))
	for i := range services.Items {
		out = append(out, serviceRow(&services.Items[i], endpointsByName[services.Items[i].Name], now))
	}
	return out, nil
}

func serviceRow(svc *corev1.Service, ep *corev1.Endpoints, now time.Time) dto.ServiceRow {
	ready, notReady := endpointCounts(ep)
	return dto.ServiceRow{
		Name:              svc.Name,
		Namespace:         svc.Namespace,
		Type:              serviceType(svc.Spec.Type),
		ClusterIPs:        clusterIPs(svc.Spec),
		Ports:             portsSummary(svc.Spec.Ports),
		EndpointsReady:    int32(ready),
		EndpointsNotReady: int32(notReady),
		Labels:            mapCopy(svc.Labels),
		AgeSec:            ageSec(now, svc.CreationTimestamp),
	}
}

func GetServiceDetails(ctx context.Context, cs kubernetes.Interface, namespace, name string) (*dto.ServiceDetails, error) {
	svc, err := cs.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}

	var ep *corev1.Endpoints
	if got, err := cs.CoreV1().Endpoints(namespace).Get(ctx, name, metav1.GetOptions{}); err == nil {
		ep = got
	}

	yamlDoc, err := toYAML(svc, "v1", "Service")
	if err != nil {
		return nil, err
	}

	return &dto.ServiceDetails{
		Row:             serviceRow(svc, ep, time.Now()),
		Selector:        mapCopy(svc.Spec.Selector),
		ExternalName:    svc.Spec.ExternalName,
		SessionAffinity: string(svc.Spec.SessionAffinity),
		Annotations:     mapCopy(svc.Annotations),
		YAML:            yamlDoc,
	}, nil
}

func portsSummary(ports []corev1.ServicePort) string {
	if len(ports) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		entry := fmt.Sprintf("%d", p.Port)
		if target := targetPort(p.TargetPort); target != "" && target != entry {
			entry += ":" + target
		}
		proto := string(p.Protocol)
		if proto == "" {
			proto = "TCP"
		}
		entry += "/" + proto
		if p.NodePort != 0 {
			entry = fmt.Sprintf("%s (NP %d)", entry, p.NodePort)
		}
		parts = append(parts, entry)
	}
	return strings.Join(parts, ", ")
}

func endpointCounts(ep *corev1.Endpoints) (int, int) {
	if ep == nil {
		return 0, 0
	}
	ready, notReady := 0, 0
	for _, subset := range ep.Subsets {
		ready += len(subset.Addresses)
		notReady += len(subset.NotReadyAddresses)
	}
	return ready, notReady
}

func clusterIPs(spec corev1.ServiceSpec) []string {
	if len(spec.ClusterIPs) > 0 {
		return append([]string{}, spec.ClusterIPs...)
	}
	if spec.ClusterIP != "" && spec.ClusterIP != corev1.ClusterIPNone {
		return []string{spec.ClusterIP}
	}
	return nil
}

func serviceType(t corev1.ServiceType) string {
	if t == "" {
		return string(corev1.ServiceTypeClusterIP)
	}
	return string(t)
}

func targetPort(v intstr.IntOrString) string {
	if v.Type == intstr.String {
		return v.StrVal
	}
	if v.IntVal == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v.IntVal)
}
