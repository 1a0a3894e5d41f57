package mpcc

import "gonum.org/v1/gonum/mat"

// Discrete triple-integrator kernels. Jerk held constant over each step maps
// to states at t = (k+1)*dt through closed-form lower-triangular operators:
//
//	a_{k+1} = a_k + j_k dt
//	v_{k+1} = v_k + a_k dt + j_k dt^2 / 2
//	p_{k+1} = p_k + v_k dt + a_k dt^2 / 2 + j_k dt^3 / 6

// jerkToAccKernel maps the jerk vector to the acceleration deltas at each
// horizon step: lower triangular of dt.
func jerkToAccKernel(n int, dt float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for k := 0; k < n; k++ {
		for i := 0; i <= k; i++ {
			m.Set(k, i, dt)
		}
	}
	return m
}

// jerkToVelKernel maps the jerk vector to velocity deltas; entry (k, i) for
// i <= k is (k - i + 0.5) dt^2.
func jerkToVelKernel(n int, dt float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	dt2 := dt * dt
	for k := 0; k < n; k++ {
		for i := 0; i <= k; i++ {
			m.Set(k, i, (float64(k-i)+0.5)*dt2)
		}
	}
	return m
}

// jerkToPosKernel maps the jerk vector to position deltas, built by unit
// impulse simulation of the discrete triple integrator.
func jerkToPosKernel(n int, dt float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		var dp, dv, da float64
		for k := 0; k < n; k++ {
			j := 0.0
			if k == i {
				j = 1.0
			}
			dp += dv*dt + 0.5*da*dt*dt + j*dt*dt*dt/6
			dv += da*dt + 0.5*j*dt*dt
			da += j * dt
			m.Set(k, i, dp)
		}
	}
	return m
}

// progressKernel maps virtual speeds to progress deltas:
// s_k = s_0 + dt * cumsum(vs), lower triangular of dt.
func progressKernel(n int, dt float64) *mat.Dense {
	return jerkToAccKernel(n, dt)
}

// mulKernel computes out = kernel * v for plain float slices.
func mulKernel(kernel *mat.Dense, v []float64, out []float64) {
	n := len(v)
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i <= k; i++ {
			sum += kernel.At(k, i) * v[i]
		}
		out[k] = sum
	}
}
